package service

import (
	"bytes"
	"context"
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// questionKey identifies "the same" question across a template and its
// derived counterpart: same position, same type. Ids never match across
// the template boundary.
type questionKey struct {
	Position int
	Type     models.QuestionType
}

// attachmentKey identifies an assignment attachment across the template
// boundary by position and type.
type attachmentKey struct {
	Position int
	Type     string
}

type resourceFrame struct {
	template models.Resource
	parentID *uint
}

// syncSectionTree reconciles one template section and its whole subtree
// into the subject group.
func (s *syncService) syncSectionTree(ctx context.Context, repo repository.SyncRepository, template models.CourseSection, subjectGroupID uint, academicStart time.Time) (SyncReport, error) {
	var report SyncReport

	target, err := s.resolveDerivedSection(ctx, repo, template, subjectGroupID, academicStart, &report)
	if err != nil {
		return report, err
	}

	if err := s.syncResources(ctx, repo, template.ID, target, nil, &report); err != nil {
		return report, err
	}
	if err := s.syncAssignments(ctx, repo, template.ID, target, &report); err != nil {
		return report, err
	}
	if err := s.syncTests(ctx, repo, template.ID, target, &report); err != nil {
		return report, err
	}

	return report, nil
}

// resolveDerivedSection finds or creates the derived section for the
// template. Dates are computed only on creation or while still unset;
// unlinked sections keep every field but still act as sync targets for
// their children, which carry unlink flags of their own.
func (s *syncService) resolveDerivedSection(ctx context.Context, repo repository.SyncRepository, template models.CourseSection, subjectGroupID uint, academicStart time.Time, report *SyncReport) (models.CourseSection, error) {
	existing, found, err := repo.DerivedSectionByRef(ctx, subjectGroupID, template.ID)
	if err != nil {
		return models.CourseSection{}, err
	}

	if !found {
		start, end := sectionDatesFromTemplate(template, academicStart)
		groupID := subjectGroupID
		templateID := template.ID
		section := models.CourseSection{
			SubjectGroupID: &groupID,
			TemplateRefID:  &templateID,
			Title:          template.Title,
			Position:       template.Position,
			StartDate:      start,
			EndDate:        end,
		}
		if err := repo.CreateSection(ctx, &section); err != nil {
			return models.CourseSection{}, err
		}
		report.Created++
		return section, nil
	}

	if existing.IsUnlinkedFromTemplate {
		report.Preserved++
		return existing, nil
	}

	changed := false
	if existing.Title != template.Title {
		existing.Title = template.Title
		changed = true
	}
	if existing.Position != template.Position {
		existing.Position = template.Position
		changed = true
	}
	if existing.StartDate == nil && existing.EndDate == nil {
		start, end := sectionDatesFromTemplate(template, academicStart)
		if start != nil || end != nil {
			existing.StartDate = start
			existing.EndDate = end
			changed = true
		}
	}

	if changed {
		if err := repo.UpdateSection(ctx, &existing); err != nil {
			return models.CourseSection{}, err
		}
		report.Updated++
	} else {
		report.Preserved++
	}

	return existing, nil
}

// syncResources walks the template resource tree depth-first, parents
// before children, resolving each node against the derived section.
// When scopedRoot is non-nil only that subtree is synced. The traversal
// is iterative with a visited set, so a malformed parent cycle cannot
// recurse unboundedly.
func (s *syncService) syncResources(ctx context.Context, repo repository.SyncRepository, templateSectionID uint, target models.CourseSection, scopedRoot *models.Resource, report *SyncReport) error {
	templates, err := repo.ResourcesBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}

	childrenOf := make(map[uint][]models.Resource)
	var roots []models.Resource
	for _, resource := range templates {
		if resource.ParentResourceID != nil {
			childrenOf[*resource.ParentResourceID] = append(childrenOf[*resource.ParentResourceID], resource)
		} else {
			roots = append(roots, resource)
		}
	}

	var stack []resourceFrame
	if scopedRoot != nil {
		parentID, err := s.resolveDerivedResourceParent(ctx, repo, *scopedRoot, target.ID)
		if err != nil {
			return err
		}
		stack = append(stack, resourceFrame{template: *scopedRoot, parentID: parentID})
	} else {
		// Reverse push keeps position order on pop.
		for i := len(roots) - 1; i >= 0; i-- {
			stack = append(stack, resourceFrame{template: roots[i]})
		}
	}

	visited := make(map[uint]struct{})
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[frame.template.ID]; seen {
			continue
		}
		visited[frame.template.ID] = struct{}{}

		derivedID, skipChildren, err := s.syncOneResource(ctx, repo, frame.template, target.ID, frame.parentID, report)
		if err != nil {
			return err
		}
		if skipChildren {
			continue
		}

		children := childrenOf[frame.template.ID]
		for i := len(children) - 1; i >= 0; i-- {
			parent := derivedID
			stack = append(stack, resourceFrame{template: children[i], parentID: &parent})
		}
	}

	return nil
}

// resolveDerivedResourceParent maps a scoped template resource's parent
// to its derived counterpart in the target section, or nil for roots
// and not-yet-synced parents.
func (s *syncService) resolveDerivedResourceParent(ctx context.Context, repo repository.SyncRepository, template models.Resource, targetSectionID uint) (*uint, error) {
	if template.ParentResourceID == nil {
		return nil, nil
	}
	parent, found, err := repo.DerivedResourceByRef(ctx, targetSectionID, *template.ParentResourceID)
	if err != nil || !found {
		return nil, err
	}
	id := parent.ID
	return &id, nil
}

func (s *syncService) syncOneResource(ctx context.Context, repo repository.SyncRepository, template models.Resource, targetSectionID uint, parentID *uint, report *SyncReport) (uint, bool, error) {
	existing, found, err := repo.DerivedResourceByRef(ctx, targetSectionID, template.ID)
	if err != nil {
		return 0, false, err
	}

	if !found {
		templateID := template.ID
		clone := models.Resource{
			CourseSectionID:  targetSectionID,
			ParentResourceID: parentID,
			TemplateRefID:    &templateID,
			Type:             template.Type,
			Title:            template.Title,
			Description:      template.Description,
			URL:              template.URL,
			Position:         template.Position,
		}
		if template.FileURL != "" {
			clone.FileURL = template.FileURL
		}
		if err := repo.CreateResource(ctx, &clone); err != nil {
			return 0, false, err
		}
		report.Created++
		return clone.ID, false, nil
	}

	if existing.IsUnlinkedFromTemplate {
		report.Preserved++
		return existing.ID, true, nil
	}

	changed := false
	if existing.Type != template.Type {
		existing.Type = template.Type
		changed = true
	}
	if existing.Title != template.Title {
		existing.Title = template.Title
		changed = true
	}
	if existing.Description != template.Description {
		existing.Description = template.Description
		changed = true
	}
	if existing.URL != template.URL {
		existing.URL = template.URL
		changed = true
	}
	if template.FileURL != "" && existing.FileURL != template.FileURL {
		existing.FileURL = template.FileURL
		changed = true
	}
	if existing.Position != template.Position {
		existing.Position = template.Position
		changed = true
	}
	if !uintPtrEqual(existing.ParentResourceID, parentID) {
		existing.ParentResourceID = parentID
		changed = true
	}

	if changed {
		if err := repo.UpdateResource(ctx, &existing); err != nil {
			return 0, false, err
		}
		report.Updated++
	} else {
		report.Preserved++
	}

	return existing.ID, false, nil
}

func (s *syncService) syncAssignments(ctx context.Context, repo repository.SyncRepository, templateSectionID uint, target models.CourseSection, report *SyncReport) error {
	templates, err := repo.AssignmentsBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}

	for _, template := range templates {
		if err := s.syncOneAssignment(ctx, repo, template, target, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *syncService) syncOneAssignment(ctx context.Context, repo repository.SyncRepository, template models.Assignment, target models.CourseSection, report *SyncReport) error {
	existing, found, err := repo.DerivedAssignmentByRef(ctx, target.ID, template.ID)
	if err != nil {
		return err
	}

	due := assignmentDueFromTemplate(template, target.StartDate)

	if !found {
		templateID := template.ID
		clone := models.Assignment{
			CourseSectionID: target.ID,
			TeacherID:       template.TeacherID,
			TemplateRefID:   &templateID,
			Title:           template.Title,
			Description:     template.Description,
			DueAt:           due,
			MaxGrade:        template.MaxGrade,
		}
		if err := repo.CreateAssignment(ctx, &clone); err != nil {
			return err
		}
		report.Created++
		for _, attachment := range template.Attachments {
			copy := models.AssignmentAttachment{
				AssignmentID: clone.ID,
				Type:         attachment.Type,
				Title:        attachment.Title,
				Content:      attachment.Content,
				FileURL:      attachment.FileURL,
				Position:     attachment.Position,
			}
			if err := repo.CreateAttachment(ctx, &copy); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	}

	if existing.IsUnlinkedFromTemplate {
		report.Preserved++
		return nil
	}

	changed := false
	if existing.Title != template.Title {
		existing.Title = template.Title
		changed = true
	}
	if existing.Description != template.Description {
		existing.Description = template.Description
		changed = true
	}
	if !timePtrEqual(existing.DueAt, due) {
		existing.DueAt = due
		changed = true
	}
	if existing.MaxGrade != template.MaxGrade {
		existing.MaxGrade = template.MaxGrade
		changed = true
	}

	if changed {
		if err := repo.UpdateAssignment(ctx, &existing); err != nil {
			return err
		}
		report.Updated++
	} else {
		report.Preserved++
	}

	return s.syncAttachments(ctx, repo, template.Attachments, existing, report)
}

// syncAttachments reconciles the derived attachment list against the
// template's, keyed by (position, type).
func (s *syncService) syncAttachments(ctx context.Context, repo repository.SyncRepository, templates []models.AssignmentAttachment, derived models.Assignment, report *SyncReport) error {
	templateByKey := make(map[attachmentKey]models.AssignmentAttachment, len(templates))
	for _, attachment := range templates {
		templateByKey[attachmentKey{attachment.Position, attachment.Type}] = attachment
	}

	matched := make(map[attachmentKey]struct{})
	for _, attachment := range derived.Attachments {
		key := attachmentKey{attachment.Position, attachment.Type}
		template, ok := templateByKey[key]
		if _, dup := matched[key]; !ok || dup {
			if err := repo.DeleteAttachment(ctx, attachment.ID); err != nil {
				return err
			}
			report.Deleted++
			continue
		}
		matched[key] = struct{}{}

		changed := false
		if attachment.Title != template.Title {
			attachment.Title = template.Title
			changed = true
		}
		if attachment.Content != template.Content {
			attachment.Content = template.Content
			changed = true
		}
		if attachment.FileURL != template.FileURL {
			attachment.FileURL = template.FileURL
			changed = true
		}
		if changed {
			current := attachment
			if err := repo.UpdateAttachment(ctx, &current); err != nil {
				return err
			}
			report.Updated++
		} else {
			report.Preserved++
		}
	}

	for key, template := range templateByKey {
		if _, ok := matched[key]; ok {
			continue
		}
		clone := models.AssignmentAttachment{
			AssignmentID: derived.ID,
			Type:         template.Type,
			Title:        template.Title,
			Content:      template.Content,
			FileURL:      template.FileURL,
			Position:     template.Position,
		}
		if err := repo.CreateAttachment(ctx, &clone); err != nil {
			return err
		}
		report.Created++
	}

	return nil
}

func (s *syncService) syncTests(ctx context.Context, repo repository.SyncRepository, templateSectionID uint, target models.CourseSection, report *SyncReport) error {
	templates, err := repo.TestsBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}

	for _, template := range templates {
		if err := s.syncOneTest(ctx, repo, template, target, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *syncService) syncOneTest(ctx context.Context, repo repository.SyncRepository, template models.Test, target models.CourseSection, report *SyncReport) error {
	existing, found, err := repo.DerivedTestByRef(ctx, target.ID, template.ID)
	if err != nil {
		return err
	}

	templateQuestions, err := repo.QuestionsByTest(ctx, template.ID)
	if err != nil {
		return err
	}

	if !found {
		templateID := template.ID
		clone := models.Test{
			CourseSectionID:       target.ID,
			TeacherID:             template.TeacherID,
			TemplateRefID:         &templateID,
			Title:                 template.Title,
			Description:           template.Description,
			IsPublished:           template.IsPublished,
			ScheduledAt:           copyTimePtr(template.ScheduledAt),
			RevealResultsAt:       copyTimePtr(template.RevealResultsAt),
			AllowMultipleAttempts: template.AllowMultipleAttempts,
			MaxAttempts:           template.MaxAttempts,
			ShowCorrectAnswers:    template.ShowCorrectAnswers,
		}
		if err := repo.CreateTest(ctx, &clone); err != nil {
			return err
		}
		report.Created++
		for _, question := range templateQuestions {
			if err := s.cloneQuestion(ctx, repo, question, clone.ID, report); err != nil {
				return err
			}
		}
		return nil
	}

	if existing.IsUnlinkedFromTemplate {
		report.Preserved++
		return nil
	}

	hasCompleted, err := repo.HasCompletedAttempts(ctx, existing.ID)
	if err != nil {
		return err
	}

	// Scalar metadata is always safe to sync, live attempts or not.
	if changed := applyTestMetadata(&existing, template); changed {
		if err := repo.UpdateTest(ctx, &existing); err != nil {
			return err
		}
		report.Updated++
	} else {
		report.Preserved++
	}

	optionIDs, err := repo.OptionsWithAnswers(ctx, existing.ID)
	if err != nil {
		return err
	}
	optionsWithAnswers := make(map[uint]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		optionsWithAnswers[id] = struct{}{}
	}

	derivedQuestions, err := repo.QuestionsByTest(ctx, existing.ID)
	if err != nil {
		return err
	}

	templateByKey := make(map[questionKey]models.Question, len(templateQuestions))
	for _, question := range templateQuestions {
		templateByKey[questionKey{question.Position, question.Type}] = question
	}

	matched := make(map[questionKey]struct{})
	for _, derived := range derivedQuestions {
		key := questionKey{derived.Position, derived.Type}
		templateQuestion, ok := templateByKey[key]
		if _, dup := matched[key]; !ok || dup {
			// Orphaned question: gone from the template. Answered
			// questions on completed attempts survive to protect grades.
			if hasCompleted {
				graded, err := repo.QuestionHasGradedWork(ctx, derived.ID)
				if err != nil {
					return err
				}
				if graded {
					report.Preserved++
					continue
				}
			}
			if err := repo.DeleteQuestion(ctx, derived.ID); err != nil {
				return err
			}
			report.Deleted++
			continue
		}
		matched[key] = struct{}{}

		if err := s.syncMatchedQuestion(ctx, repo, templateQuestion, derived, optionsWithAnswers, report); err != nil {
			return err
		}
	}

	for _, question := range templateQuestions {
		key := questionKey{question.Position, question.Type}
		if _, ok := matched[key]; ok {
			continue
		}
		if err := s.cloneQuestion(ctx, repo, question, existing.ID, report); err != nil {
			return err
		}
	}

	return nil
}

func applyTestMetadata(derived *models.Test, template models.Test) bool {
	changed := false
	if derived.Title != template.Title {
		derived.Title = template.Title
		changed = true
	}
	if derived.Description != template.Description {
		derived.Description = template.Description
		changed = true
	}
	if derived.IsPublished != template.IsPublished {
		derived.IsPublished = template.IsPublished
		changed = true
	}
	if !timePtrEqual(derived.ScheduledAt, template.ScheduledAt) {
		derived.ScheduledAt = copyTimePtr(template.ScheduledAt)
		changed = true
	}
	if !timePtrEqual(derived.RevealResultsAt, template.RevealResultsAt) {
		derived.RevealResultsAt = copyTimePtr(template.RevealResultsAt)
		changed = true
	}
	if derived.AllowMultipleAttempts != template.AllowMultipleAttempts {
		derived.AllowMultipleAttempts = template.AllowMultipleAttempts
		changed = true
	}
	if derived.MaxAttempts != template.MaxAttempts {
		derived.MaxAttempts = template.MaxAttempts
		changed = true
	}
	if derived.ShowCorrectAnswers != template.ShowCorrectAnswers {
		derived.ShowCorrectAnswers = template.ShowCorrectAnswers
		changed = true
	}
	return changed
}

// syncMatchedQuestion updates a derived question that matched its
// template by (position, type). The reference answer and correct-option
// flags are frozen as soon as graded work references them.
func (s *syncService) syncMatchedQuestion(ctx context.Context, repo repository.SyncRepository, template, derived models.Question, optionsWithAnswers map[uint]struct{}, report *SyncReport) error {
	graded, err := repo.QuestionHasGradedWork(ctx, derived.ID)
	if err != nil {
		return err
	}

	changed := false
	if derived.Text != template.Text {
		derived.Text = template.Text
		changed = true
	}
	if derived.Points != template.Points {
		derived.Points = template.Points
		changed = true
	}
	if derived.SampleAnswer != template.SampleAnswer {
		derived.SampleAnswer = template.SampleAnswer
		changed = true
	}
	if derived.KeyWords != template.KeyWords {
		derived.KeyWords = template.KeyWords
		changed = true
	}
	if !bytes.Equal(derived.MatchingPairs, template.MatchingPairs) {
		derived.MatchingPairs = template.MatchingPairs
		changed = true
	}
	if !graded && derived.CorrectAnswerText != template.CorrectAnswerText {
		derived.CorrectAnswerText = template.CorrectAnswerText
		changed = true
	}

	if changed {
		if err := repo.UpdateQuestion(ctx, &derived); err != nil {
			return err
		}
		report.Updated++
	} else {
		report.Preserved++
	}

	return s.syncOptions(ctx, repo, template.Options, derived, optionsWithAnswers, report)
}

// syncOptions reconciles option lists, matched by position only.
func (s *syncService) syncOptions(ctx context.Context, repo repository.SyncRepository, templates []models.Option, derived models.Question, optionsWithAnswers map[uint]struct{}, report *SyncReport) error {
	templateByPos := make(map[int]models.Option, len(templates))
	for _, option := range templates {
		templateByPos[option.Position] = option
	}

	matched := make(map[int]struct{})
	for _, option := range derived.Options {
		template, ok := templateByPos[option.Position]
		if _, dup := matched[option.Position]; !ok || dup {
			if _, answered := optionsWithAnswers[option.ID]; answered {
				report.Preserved++
				continue
			}
			if err := repo.DeleteOption(ctx, option.ID); err != nil {
				return err
			}
			report.Deleted++
			continue
		}
		matched[option.Position] = struct{}{}

		_, answered := optionsWithAnswers[option.ID]
		changed := false
		if option.Text != template.Text {
			option.Text = template.Text
			changed = true
		}
		if option.ImageURL != template.ImageURL {
			option.ImageURL = template.ImageURL
			changed = true
		}
		if !answered && option.IsCorrect != template.IsCorrect {
			option.IsCorrect = template.IsCorrect
			changed = true
		}
		if changed {
			current := option
			if err := repo.UpdateOption(ctx, &current); err != nil {
				return err
			}
			report.Updated++
		} else {
			report.Preserved++
		}
	}

	for _, template := range templates {
		if _, ok := matched[template.Position]; ok {
			continue
		}
		clone := models.Option{
			QuestionID: derived.ID,
			Text:       template.Text,
			ImageURL:   template.ImageURL,
			IsCorrect:  template.IsCorrect,
			Position:   template.Position,
		}
		if err := repo.CreateOption(ctx, &clone); err != nil {
			return err
		}
		report.Created++
	}

	return nil
}

func (s *syncService) cloneQuestion(ctx context.Context, repo repository.SyncRepository, template models.Question, testID uint, report *SyncReport) error {
	clone := models.Question{
		TestID:            testID,
		Type:              template.Type,
		Text:              template.Text,
		Points:            template.Points,
		Position:          template.Position,
		SampleAnswer:      template.SampleAnswer,
		KeyWords:          template.KeyWords,
		CorrectAnswerText: template.CorrectAnswerText,
		MatchingPairs:     template.MatchingPairs,
	}
	if err := repo.CreateQuestion(ctx, &clone); err != nil {
		return err
	}
	report.Created++

	for _, option := range template.Options {
		copy := models.Option{
			QuestionID: clone.ID,
			Text:       option.Text,
			ImageURL:   option.ImageURL,
			IsCorrect:  option.IsCorrect,
			Position:   option.Position,
		}
		if err := repo.CreateOption(ctx, &copy); err != nil {
			return err
		}
		report.Created++
	}

	return nil
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
