package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
)

func testConfig(baseURL string) config.WhatsAppConfig {
	return config.WhatsAppConfig{
		BaseURL:          baseURL,
		APIVersion:       "v21.0",
		PhoneNumberID:    "1234567890",
		AccessToken:      "test-token",
		TemplateName:     "reference_notification",
		TemplateLanguage: "en",
		Timeout:          2 * time.Second,
	}
}

func TestSendTemplateSuccess(t *testing.T) {
	var captured messageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/1234567890/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.abc"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	res, err := client.SendTemplate(context.Background(), "919876500001", TemplateMessage{
		Name:       "reference_notification",
		BodyParams: []string{"Asha", "9876500000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc", res.MessageID)
	assert.Equal(t, "template", captured.Type)
	assert.Equal(t, "919876500001", captured.To)
	require.NotNil(t, captured.Template)
	assert.Equal(t, "en", captured.Template.Language.Code)
	require.Len(t, captured.Template.Components, 1)
	assert.Equal(t, "Asha", captured.Template.Components[0].Parameters[0].Text)
}

func TestSendTextParsesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463,"fbtrace_id":"trace-1"}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	_, err := client.SendText(context.Background(), "919876500001", "hello")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, 463, apiErr.Subcode)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)
	assert.Equal(t, ClassCredentialInvalid, Classify(err))
}

func TestSendRequiresMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	_, err := client.SendText(context.Background(), "919876500001", "hello")
	assert.ErrorIs(t, err, ErrNoMessageID)
}

func TestSendWithoutCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.AccessToken = ""
	client := NewClient(cfg, nil)
	assert.False(t, client.Configured())
	_, err := client.SendText(context.Background(), "919876500001", "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestErrorClasses(t *testing.T) {
	cases := map[int]ErrorClass{
		132001: ClassTemplateRejected,
		132015: ClassTemplateRejected,
		190:    ClassCredentialInvalid,
		10:     ClassCredentialInvalid,
		100:    ClassRecipientMisconfigured,
		131030: ClassRecipientMisconfigured,
		131026: ClassOther,
		4:      ClassOther,
	}
	for code, want := range cases {
		assert.Equal(t, want, (&APIError{Code: code}).Class(), code)
	}
}

func TestUnparseableErrorBody(t *testing.T) {
	err := parseAPIError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	assert.Equal(t, ClassOther, err.Class())
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
}
