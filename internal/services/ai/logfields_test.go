package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCallFields(t *testing.T) {
	t.Parallel()

	jobID, userID := uuid.New(), uuid.New()
	req := GenerateRequest{Name: "Camogli\nlevel=error"}

	tests := []struct {
		name     string
		ctx      context.Context
		wantKeys []string
	}{
		{"no job", context.Background(), []string{"operation", "provider", "model", "destination"}},
		{"job from cli", WithJob(context.Background(), jobID, uuid.Nil), []string{"operation", "provider", "model", "destination", "job_id"}},
		{"job from user", WithJob(context.Background(), jobID, userID), []string{"operation", "provider", "model", "destination", "job_id", "user_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fields := callFields(tt.ctx, "gemini", "gemini-2.0-flash", req)
			if len(fields) != len(tt.wantKeys) {
				t.Fatalf("got %d fields, want %v", len(fields), tt.wantKeys)
			}
			for i, key := range tt.wantKeys {
				if fields[i].Key != key {
					t.Errorf("field %d = %s, want %s", i, fields[i].Key, key)
				}
			}
			if strings.Contains(fields[3].String, "\n") {
				t.Errorf("destination not cleaned: %q", fields[3].String)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", debugPreviewLength+10)
	if got := preview(long, false); len(got) != previewLength+len("...") {
		t.Errorf("preview length = %d", len(got))
	}
	if got := preview(long, true); len(got) != debugPreviewLength+len("...") {
		t.Errorf("debug preview length = %d", len(got))
	}
}
