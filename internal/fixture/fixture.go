// Package fixture parses YAML seed files describing surveys, their questions
// and scoring guidelines. The seed subcommand feeds parsed surveys straight
// into the store.
package fixture

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ndrozd/surveybot/internal/model"
)

// Survey is one survey from a seed file, with question orders resolved and
// validated.
type Survey struct {
	Title       string
	Description string
	Questions   []model.QuestionInput
}

type yamlFile struct {
	Surveys []yamlSurvey `yaml:"surveys"`
}

type yamlSurvey struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Questions   []yamlQuestion `yaml:"questions"`
}

// yamlQuestion keeps order_index optional: questions without one take their
// position in the list.
type yamlQuestion struct {
	Text       string `yaml:"text"`
	OrderIndex *int   `yaml:"order_index"`
	Type       string `yaml:"type"`
	Guideline  string `yaml:"guideline"`
}

// Parse decodes a seed file. Every survey needs a title; question orders must
// form exactly 0..len(questions)-1 after omitted ones are filled in from list
// position.
func Parse(data []byte) ([]Survey, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}

	surveys := make([]Survey, 0, len(file.Surveys))
	for i, ys := range file.Surveys {
		sv, err := convertSurvey(ys)
		if err != nil {
			return nil, fmt.Errorf("survey %d: %w", i+1, err)
		}
		surveys = append(surveys, sv)
	}
	return surveys, nil
}

func convertSurvey(ys yamlSurvey) (Survey, error) {
	title := strings.TrimSpace(ys.Title)
	if title == "" {
		return Survey{}, fmt.Errorf("title is required")
	}

	sv := Survey{Title: title, Description: strings.TrimSpace(ys.Description)}
	used := make(map[int]bool, len(ys.Questions))
	for i, yq := range ys.Questions {
		text := strings.TrimSpace(yq.Text)
		if text == "" {
			return Survey{}, fmt.Errorf("question %d: text is required", i+1)
		}

		order := i
		if yq.OrderIndex != nil {
			order = *yq.OrderIndex
		}
		if order < 0 || order >= len(ys.Questions) {
			return Survey{}, fmt.Errorf("question %d: order_index %d out of range 0..%d", i+1, order, len(ys.Questions)-1)
		}
		if used[order] {
			return Survey{}, fmt.Errorf("question %d: order_index %d already used", i+1, order)
		}
		used[order] = true

		qType := model.QuestionType(strings.TrimSpace(yq.Type))
		if qType != "" && qType != model.QuestionText {
			return Survey{}, fmt.Errorf("question %d: unsupported type %q", i+1, yq.Type)
		}

		sv.Questions = append(sv.Questions, model.QuestionInput{
			Text:       text,
			OrderIndex: order,
			Type:       qType,
			Guideline:  strings.TrimSpace(yq.Guideline),
		})
	}
	return sv, nil
}
