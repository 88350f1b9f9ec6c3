package quiz

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-quiz/core"
)

var (
	answerKeyTag  = "answerkey"
	answerKeyText = "answer key must reference distinct options"

	errInvalidQuiz      = errors.New("invalid quiz")
	errInvalidQuestion  = errors.New("invalid question")
	errInvalidAnswers   = errors.New("invalid answers")
	pointsText          = "points must be greater than 0"
	passingScoreText    = "passing score cannot be greater than max score"
	availableUntilText  = "available until cannot be before available from"
	unknownQuestionText = "unknown question"
	unknownOptionText   = "unknown option"
)

// InitValidators registers the quiz validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(questionStructValidation, NewQuestion{})
	core.RegisterCustomTranslation(validate, translator, answerKeyTag, answerKeyText)
}

// questionStructValidation checks that the answer key points to distinct, existing options.
func questionStructValidation(sl validator.StructLevel) {
	nq, ok := sl.Current().Interface().(NewQuestion)
	if !ok {
		return
	}
	seen := make(map[int]bool, len(nq.AnswerKey))
	for _, idx := range nq.AnswerKey {
		if idx < 0 || idx >= len(nq.Options) || seen[idx] {
			sl.ReportError(nq.AnswerKey, "answer_key", "AnswerKey", answerKeyTag, "")
			return
		}
		seen[idx] = true
	}
}

// checkQuiz applies the rules spanning several fields of a Quiz.
func checkQuiz(q Quiz) error {
	var flds []core.FieldError
	if q.PassingScore != nil && *q.PassingScore > q.MaxScore {
		flds = append(flds, core.FieldError{Field: "passing_score", Error: passingScoreText})
	}
	if q.AvailableFrom != nil && q.AvailableUntil != nil && q.AvailableUntil.Before(*q.AvailableFrom) {
		flds = append(flds, core.FieldError{Field: "available_until", Error: availableUntilText})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errInvalidQuiz, flds...)
	}
	return nil
}

// checkQuestion applies the rules a NewQuestion must follow to be stored, whether or not it was validated.
func checkQuestion(nq NewQuestion) error {
	var flds []core.FieldError
	if len(nq.AnswerKey) == 0 {
		flds = append(flds, core.FieldError{Field: "answer_key", Error: answerKeyText})
	} else {
		seen := make(map[int]bool, len(nq.AnswerKey))
		for _, idx := range nq.AnswerKey {
			if idx < 0 || idx >= len(nq.Options) || seen[idx] {
				flds = append(flds, core.FieldError{Field: "answer_key", Error: answerKeyText})
				break
			}
			seen[idx] = true
		}
	}
	if nq.Points <= 0 {
		flds = append(flds, core.FieldError{Field: "points", Error: pointsText})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errInvalidQuestion, flds...)
	}
	return nil
}

// checkAnswers rejects answers to questions or options that are not part of the quiz.
func checkAnswers(answers Answers, questions []Question) error {
	byID := make(map[string]Question, len(questions))
	for _, qn := range questions {
		byID[qn.ID] = qn
	}

	var flds []core.FieldError
	for qid, opts := range answers {
		qn, ok := byID[qid]
		if !ok {
			flds = append(flds, core.FieldError{Field: qid, Error: unknownQuestionText})
			continue
		}
		for _, opt := range opts {
			if !qn.hasOption(opt) {
				flds = append(flds, core.FieldError{Field: qid, Error: unknownOptionText})
				break
			}
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errInvalidAnswers, flds...)
	}
	return nil
}

func (qn Question) hasOption(id string) bool {
	for _, opt := range qn.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}
