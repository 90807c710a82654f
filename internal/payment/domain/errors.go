package domain

import "errors"

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrTransactionNotFound   = errors.New("transaction_not_found")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidMetadata       = errors.New("invalid_metadata")
	ErrUnknownProductType    = errors.New("unknown_product_type")
)
