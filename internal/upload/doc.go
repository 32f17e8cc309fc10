// Package upload relays caller-submitted images to S3-compatible storage so
// image-taking tools (validate_solution, solve_problem) can reference them
// by URL.
package upload
