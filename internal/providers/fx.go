package providers

import (
	"github.com/smallbiznis/eksporyuk/internal/providers/email"
	"github.com/smallbiznis/eksporyuk/internal/providers/mailinglist"
	"github.com/smallbiznis/eksporyuk/internal/providers/push"
	"github.com/smallbiznis/eksporyuk/internal/providers/whatsapp"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	mailinglist.Module,
	push.Module,
	whatsapp.Module,
)
