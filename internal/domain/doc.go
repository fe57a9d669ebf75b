// Package domain defines the records managed by the exam-authoring backend.
//
// Every record kept in a collection satisfies Entity: it carries a store
// assigned identifier and an archived flag used for soft deletion. The
// concrete entities mirror what the admin UI edits.
//
// # Core Types
//
// Question is a single exam question with its answers, display alignment and
// the study field it belongs to.
//
// Test is an exam: an ordered list of question ids plus grading, messaging
// and notification settings.
//
// StudyField groups questions and tests by subject.
//
// # Lifecycle
//
// Records are never removed from storage. A record is either Live or
// Archived; archived records are hidden from listings but stay addressable
// for updates.
//
// # Design Principles
//
// - Value types; the repository hands out copies
// - No storage or transport dependencies
// - Validation lives next to the type it checks
package domain
