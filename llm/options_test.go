package llm

import (
	"testing"
	"time"
)

func TestWithTimeout(t *testing.T) {
	endpoint := EndpointConfig{Provider: "ollama", URL: "http://localhost:11434", Model: "m"}

	c := NewClient(endpoint, WithTimeout(45*time.Second))
	if c.httpClient.Timeout != 45*time.Second {
		t.Errorf("timeout = %s, want 45s", c.httpClient.Timeout)
	}

	// Zero and negative values keep the default.
	def := NewClient(endpoint)
	for _, d := range []time.Duration{0, -time.Second} {
		c := NewClient(endpoint, WithTimeout(d))
		if c.httpClient.Timeout != def.httpClient.Timeout {
			t.Errorf("WithTimeout(%s) changed timeout to %s", d, c.httpClient.Timeout)
		}
	}
}
