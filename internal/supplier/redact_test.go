package supplier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactStripsSensitiveKeysAtEveryLevel(t *testing.T) {
	payload := map[string]interface{}{
		"supplier": "sandbox",
		"API_KEY":  "top-secret",
		"guest": map[string]interface{}{
			"name":        "Jane Doe",
			"guest_email": "jane@example.com",
			"Guest_Phone": "+1234567",
		},
		"rooms": []interface{}{
			map[string]interface{}{
				"rate":        100,
				"card_number": "4111111111111111",
			},
		},
	}

	redacted := Redact(payload)

	assert.Equal(t, "sandbox", redacted["supplier"])
	assert.NotContains(t, redacted, "API_KEY")

	guest := redacted["guest"].(map[string]interface{})
	assert.Equal(t, "Jane Doe", guest["name"])
	assert.NotContains(t, guest, "guest_email")
	assert.NotContains(t, guest, "Guest_Phone")

	room := redacted["rooms"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, 100, room["rate"])
	assert.NotContains(t, room, "card_number")
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	payload := map[string]interface{}{
		"token": "abc",
		"note":  "keep",
	}

	_ = Redact(payload)

	assert.Equal(t, "abc", payload["token"])
}

func TestRedactNil(t *testing.T) {
	assert.Nil(t, Redact(nil))
}
