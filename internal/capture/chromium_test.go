package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotRequiresURL(t *testing.T) {
	_, err := Chromium{}.Snapshot(context.Background(), Options{})
	assert.ErrorContains(t, err, "URL is required")
}
