// Package api はHTTP APIのOpenAPI定義を埋め込んで提供する
package api

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var Spec []byte

// Load は埋め込んだOpenAPI定義を読み込んで検証する
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(Spec)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("OpenAPI定義が不正です: %w", err)
	}
	return doc, nil
}
