// Package webui embeds the prompt console served by tsuki serve.
package webui

import _ "embed"

//go:embed static/index.html
var index []byte

// Index returns the console page. The page posts to /llm_infer on the
// same origin.
func Index() []byte {
	return index
}
