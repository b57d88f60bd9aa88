package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// loadTask reads a YAML task file. A relative document path is resolved
// against the file's directory.
func loadTask(path string) (v1.StartRunRequest, error) {
	var req v1.StartRunRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read task file: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	if req.DocumentPath != "" && !filepath.IsAbs(req.DocumentPath) {
		req.DocumentPath = filepath.Join(filepath.Dir(path), req.DocumentPath)
	}
	return req, nil
}

// attachDocument loads req.DocumentPath into the base64 fields.
func attachDocument(req *v1.StartRunRequest) error {
	if req.DocumentPath == "" {
		return nil
	}
	data, mimeType, err := readDocument(req.DocumentPath)
	if err != nil {
		return err
	}
	req.DocumentBase64 = data
	if req.DocumentMimeType == "" {
		req.DocumentMimeType = mimeType
	}
	return nil
}

// readDocument returns the file as base64 and its image mime type.
func readDocument(path string) (string, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read document: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mimeType, "image/") {
		return "", "", fmt.Errorf("document %s is not a supported image (png, jpeg, gif, webp)", filepath.Base(path))
	}
	return base64.StdEncoding.EncodeToString(raw), mimeType, nil
}
