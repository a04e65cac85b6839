// Package apperrors provides structured errors shared by the auth packages.
// Services attach an ErrorCode so HTTP handlers can translate failures into
// status codes and user-facing messages without leaking internal causes.
package apperrors
