package mailinglist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseTag(t *testing.T) {
	assert.Equal(t, "membership-paket-pro-12-bulan", Purchase{Type: "MEMBERSHIP", Item: "Paket Pro (12 Bulan)"}.Tag())
}

func TestSubscribePostsForm(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addsubtolist", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"status":"success","response":"Mail Added To List"}`))
	}))
	defer server.Close()

	client := NewMailketing(Config{APIToken: "tok", BaseURL: server.URL})
	err := client.Subscribe(context.Background(), Subscription{
		ListID: "list-9",
		Email:  "budi@example.com",
		Name:   "Budi Santoso Putra",
		Phone:  "6281200000000",
		Purchase: Purchase{
			Type:          "COURSE",
			Item:          "Ekspor 101",
			TransactionID: "TXN-1",
			Amount:        250000,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", form.Get("api_token"))
	assert.Equal(t, "list-9", form.Get("list_id"))
	assert.Equal(t, "Budi", form.Get("first_name"))
	assert.Equal(t, "Santoso Putra", form.Get("last_name"))
	assert.Equal(t, "course-ekspor-101", form.Get("purchase_tag"))
	assert.Equal(t, "250000", form.Get("amount"))
}

func TestSubscribeResponses(t *testing.T) {
	body := `{"status":"failed","response":"Email already exist in this list"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewMailketing(Config{APIToken: "tok", BaseURL: server.URL})
	sub := Subscription{ListID: "l", Email: "a@example.com"}
	require.NoError(t, client.Subscribe(context.Background(), sub))

	assert.ErrorIs(t, client.Subscribe(context.Background(), Subscription{Email: "a@example.com"}), ErrRejected)
}
