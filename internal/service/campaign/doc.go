// Package campaign manages the campaigns and email templates that
// enrollments run through.
//
// The service owns the campaign lifecycle (draft, active, paused, archived)
// and validates that every step points at a template the user owns. It
// never touches enrollments beyond refusing to delete a campaign that still
// has open ones.
package campaign
