package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/regdesk/regdesk/internal/adapters/objectstore"
	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/photo"
)

type uploadPhoto struct {
	photos objectstore.Store
	season string
}

func (t *uploadPhoto) Name() string { return "upload_photo_to_s3" }
func (t *uploadPhoto) Description() string {
	return "Optimizes the uploaded player photo and stores it in the photo bucket. Returns the public URL."
}
func (t *uploadPhoto) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"temp_path": {"type": "string", "description": "Server-side path of the uploaded file"},
			"player_name": {"type": "string"},
			"team": {"type": "string"},
			"age_group": {"type": "string"}
		},
		"required": ["temp_path", "player_name", "team", "age_group"],
		"additionalProperties": false
	}`)
}

func (t *uploadPhoto) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		TempPath   string `json:"temp_path"`
		PlayerName string `json:"player_name"`
		Team       string `json:"team"`
		AgeGroup   string `json:"age_group"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	data, err := os.ReadFile(in.TempPath)
	if err != nil {
		return fail("conversion_failed", "the uploaded file could not be read")
	}

	result, err := photo.Optimize(data, filepath.Ext(in.TempPath))
	if err != nil {
		if errors.Is(err, photo.ErrUnsupportedFormat) {
			return fail("unsupported_format", "only jpeg, png, webp and heic photos are accepted")
		}
		return fail("conversion_failed", "the photo could not be processed")
	}

	metadata := map[string]string{
		"player_name": strings.TrimSpace(in.PlayerName),
		"team":        strings.TrimSpace(in.Team),
		"age_group":   strings.TrimSpace(in.AgeGroup),
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range result.Summary {
		metadata[k] = v
	}

	key := objectstore.PhotoKey(t.season, in.Team, in.AgeGroup, in.PlayerName)

	ctx, cancel := withTimeout(ctx, photoTimeout)
	defer cancel()

	url, err := t.photos.PutPhoto(ctx, key, bytes.NewReader(result.Data), result.ContentType, metadata)
	if err != nil {
		return fail("store_unavailable", "the photo bucket is not reachable")
	}

	out := map[string]any{"url": url, "key": key}
	if result.FallbackOriginal {
		out["fallback_original"] = true
	}
	return ok(out)
}
