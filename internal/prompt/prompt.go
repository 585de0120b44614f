// Prompt construction and token budgeting.
//
// DESIGN: builders produce the System/User pairs for each pipeline
// stage (query derivation, evidence-backed evaluation, consistency
// probe, emergency re-check). Every scored prompt pins the same
// output contract ("Rating: <n>/100" on its own line) so the
// aggregator can parse any model's answer with one extractor.
//
// Token counting uses the cl100k_base BPE tables; if the encoding
// cannot be loaded the counter degrades to the chars/4 approximation,
// which overestimates slightly and therefore never under-shrinks.
package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const encodingName = "cl100k_base"

// DefaultShrinkTokens bounds the input of an emergency re-check.
const DefaultShrinkTokens = 1500

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens measures text against the cl100k_base vocabulary,
// falling back to a length approximation when the tables are
// unavailable.
func CountTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			log.Warn().Err(err).Str("encoding", encodingName).
				Msg("Token encoding unavailable, using length approximation")
			return
		}
		enc = e
	})
	if enc == nil {
		return approxTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func approxTokens(text string) int {
	return (len(text) + 3) / 4
}

// Shrink returns the longest prefix of text that fits maxTokens,
// trimmed back to a word boundary. The full text comes back untouched
// when it already fits.
func Shrink(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if CountTokens(text) <= maxTokens {
		return text
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if CountTokens(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid
		}
	}

	out := strings.TrimRight(string(runes[:lo]), " \t\n")
	if i := strings.LastIndexAny(out, " \n\t"); i > len(out)/2 {
		out = out[:i]
	}
	return strings.TrimSpace(out)
}

// Prompt is a system/user pair ready for a provider call.
type Prompt struct {
	System string
	User   string
}

const checkSystem = "You are a careful fact-checking assistant. You weigh the supplied evidence, " +
	"cite sources when they are given, and are candid about uncertainty."

const ratingContract = "Respond in exactly this format:\n" +
	"Rating: <number>/100\n" +
	"Verdict: <one short paragraph explaining the rating>"

// DeriveQuery asks the model for a single web-search query covering
// the text's main factual claim.
func DeriveQuery(text string) Prompt {
	return Prompt{
		System: "You turn text into concise web-search queries.",
		User: fmt.Sprintf("Write one web search query, at most ten words, that would surface "+
			"evidence for or against the main factual claim in the text below. "+
			"Return only the query, nothing else.\n\nTEXT:\n%s", text),
	}
}

// Evidence builds the primary scored prompt: the claim plus whatever
// search evidence was gathered.
func Evidence(text, evidence string) Prompt {
	var b strings.Builder
	b.WriteString("Assess how accurate the following text is, from 0 (entirely false) ")
	b.WriteString("to 100 (entirely accurate).\n\nTEXT:\n")
	b.WriteString(text)
	if evidence != "" {
		b.WriteString("\n\nWEB EVIDENCE:\n")
		b.WriteString(evidence)
	} else {
		b.WriteString("\n\nNo web evidence was available; judge from your own knowledge ")
		b.WriteString("and say so in the verdict.")
	}
	b.WriteString("\n\n")
	b.WriteString(ratingContract)

	return Prompt{System: checkSystem, User: b.String()}
}

// Consistency builds a probe prompt that deliberately carries no
// evidence, so agreement between tiers reflects the models rather
// than the search results.
func Consistency(text string) Prompt {
	return Prompt{
		System: checkSystem,
		User: fmt.Sprintf("Using only your own knowledge, rate the accuracy of the following "+
			"text from 0 (entirely false) to 100 (entirely accurate).\n\nTEXT:\n%s\n\n%s",
			text, ratingContract),
	}
}

// Emergency builds the minimal re-check used after a pipeline
// failure. Callers pass text already shrunk to the downgraded
// model's budget.
func Emergency(text string) Prompt {
	return Prompt{
		System: "You are a fact-checking assistant.",
		User: fmt.Sprintf("Rate the likely accuracy of this text from 0 to 100. "+
			"Respond with \"Rating: <number>/100\" and one sentence of justification.\n\nTEXT:\n%s",
			text),
	}
}
