package tpxa

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robertmeta/tpxa/model"
)

// ExportOptions configures an export.
type ExportOptions struct {
	// DescriptionsToCategories exports tags that have a description as
	// categories.
	DescriptionsToCategories bool `validate:"excluded_with=TagsToCategories"`
	// TagsToCategories exports every tag as a category.
	TagsToCategories bool
	// KeepAsTags lists tag slugs that stay tags regardless of the above.
	KeepAsTags []string `validate:"dive,required"`

	Participants []Participant `validate:"-"`
	Logger       *slog.Logger  `validate:"-"`
	// Now returns the export's wall-clock instant. Defaults to time.Now.
	Now func() time.Time `validate:"-"`
}

var validate = validator.New()

// Validate checks that the options can be combined.
func (o *ExportOptions) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewError(CodeValidation, err, "invalid export options")
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "excluded_with":
			return NewError(CodeValidation, nil,
				"you can only pass one of tags-to-categories/with-descriptions-to-categories")
		case "required":
			return NewError(CodeValidation, nil, "keep-as-tag values must not be empty")
		}
	}
	return NewError(CodeValidation, err, "invalid export options")
}

// Classify returns the scheme URI a tag is exported with. The keep-as-tag
// list takes precedence over the tag's own classification and the two
// conversion options.
func Classify(tag model.Tag, opts ExportOptions) string {
	if slices.Contains(opts.KeepAsTags, tag.Slug) {
		return TagSchemeURI
	}
	if tag.IsCategory || opts.TagsToCategories ||
		(tag.Description != "" && opts.DescriptionsToCategories) {
		return CategorySchemeURI
	}
	return TagSchemeURI
}

func (o *ExportOptions) String() string {
	return fmt.Sprintf("tags_to_categories=%t with_descriptions_to_categories=%t keep_as_tag=%v",
		o.TagsToCategories, o.DescriptionsToCategories, o.KeepAsTags)
}

// ExportFilename returns the default file name for an export of the blog
// titled title.
func ExportFilename(title string) string {
	if title == "" {
		return "blog_export.tpxa"
	}
	return strings.ReplaceAll(title, " ", "_") + "_export.tpxa"
}
