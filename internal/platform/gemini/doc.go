// Package gemini provides an aesthetic analysis backend that uses Google's
// Gemini API through the google.golang.org/genai client.
//
// This package is an infrastructure adapter: it translates a free-text
// aesthetic request into a prompt, asks Gemini for a JSON answer that
// follows a fixed response schema, and converts the answer into a
// domain.Analysis without exposing genai types to the rest of the
// application.
//
// Key components:
//
// 1. Analyzer:
//   - Implements the stylist.Model contract (Analyze)
//   - Runs every call inside the gateway envelope (Router.Invoke) so the
//     call is rate limited, timed, counted in the router metrics and
//     classified like any other remote call
//
// 2. Prompt Management:
//   - Renders an embedded prompt template with the user's request
//
// 3. Response Processing:
//   - Requests JSON output constrained by a genai.Schema
//   - Validates the decoded analysis at the boundary
//
// 4. Error Handling:
//   - Maps genai.APIError status codes onto gateway.StatusError so that
//     429, 503 and 504 are classified as rate limited, unavailable and
//     timeout
//   - Reports blocked or empty responses as invalid responses
package gemini
