package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectModel(t *testing.T) {
	overrides := map[string]string{"review": "sonnet", "architecture": "opus"}

	assert.Equal(t, "explicit-model", SelectModel("explicit-model", "review", "default", overrides), "explicit always wins")
	assert.Equal(t, "sonnet", SelectModel("", "review", "default", overrides), "task-type override wins over default")
	assert.Equal(t, "default", SelectModel("", "formatting", "default", overrides), "falls back to default when no override matches")
	assert.Equal(t, "default", SelectModel("", "review", "default", nil), "nil overrides map falls back to default")
}
