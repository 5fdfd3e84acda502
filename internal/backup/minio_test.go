package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://minio:9000", "minio:9000", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"  minio:9000 ", "minio:9000", false, false},
		{"http://minio:9000/foo", "", false, true},
		{"http://", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.wantEndpoint, ep, "input %q", tt.in)
		assert.Equal(t, tt.wantSecure, secure, "input %q", tt.in)
	}
}

func TestNewMinioStore_Incomplete(t *testing.T) {
	_, err := NewMinioStore(context.Background(), MinioOptions{Endpoint: "minio:9000", Bucket: "backups"})
	assert.EqualError(t, err, "object storage configuration incomplete")
}
