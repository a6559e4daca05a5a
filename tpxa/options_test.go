package tpxa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/tpxa/model"
)

func TestExportOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    ExportOptions
		wantErr string
	}{
		{name: "defaults", opts: ExportOptions{}},
		{name: "tags to categories", opts: ExportOptions{TagsToCategories: true}},
		{name: "descriptions to categories", opts: ExportOptions{DescriptionsToCategories: true, KeepAsTags: []string{"go"}}},
		{
			name:    "both conversions",
			opts:    ExportOptions{TagsToCategories: true, DescriptionsToCategories: true},
			wantErr: "you can only pass one of tags-to-categories/with-descriptions-to-categories",
		},
		{
			name:    "empty keep-as-tag",
			opts:    ExportOptions{KeepAsTags: []string{"go", ""}},
			wantErr: "keep-as-tag values must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestNewWriter_InvalidOptions(t *testing.T) {
	_, err := NewWriter(&fakeSource{}, ExportOptions{TagsToCategories: true, DescriptionsToCategories: true})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestClassify(t *testing.T) {
	plain := model.Tag{Slug: "go"}
	described := model.Tag{Slug: "rust", Description: "A language"}
	category := model.Tag{Slug: "news", IsCategory: true}

	tests := []struct {
		name string
		tag  model.Tag
		opts ExportOptions
		want string
	}{
		{"plain tag", plain, ExportOptions{}, TagSchemeURI},
		{"source category", category, ExportOptions{}, CategorySchemeURI},
		{"described without option", described, ExportOptions{}, TagSchemeURI},
		{"described with option", described, ExportOptions{DescriptionsToCategories: true}, CategorySchemeURI},
		{"plain with descriptions option", plain, ExportOptions{DescriptionsToCategories: true}, TagSchemeURI},
		{"all to categories", plain, ExportOptions{TagsToCategories: true}, CategorySchemeURI},
		{"kept tag wins over all", plain, ExportOptions{TagsToCategories: true, KeepAsTags: []string{"go"}}, TagSchemeURI},
		{"kept tag wins over source category", category, ExportOptions{KeepAsTags: []string{"news"}}, TagSchemeURI},
		{"kept tag wins over description", described, ExportOptions{DescriptionsToCategories: true, KeepAsTags: []string{"rust"}}, TagSchemeURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.tag, tt.opts)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Classify(tt.tag, tt.opts))
		})
	}
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"", "blog_export.tpxa"},
		{"Example", "Example_export.tpxa"},
		{"My Little Blog", "My_Little_Blog_export.tpxa"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ExportFilename(tt.title))
		})
	}
}
