// Package github connects to GitHub repositories. It lists repository
// trees, fetches file content through the REST API, and supports both
// OAuth apps and personal access tokens.
//
// Header placement differs per token family: classic PATs (prefix
// "ghp_") authenticate with "Authorization: token <token>" while
// fine-grained PATs (prefix "github_pat_") and OAuth access tokens use
// "Authorization: Bearer <token>".
package github
