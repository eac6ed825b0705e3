// Package extract provides the production implementations of the
// extraction and labeling collaborators, backed by the Gemini API.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/cardlens/analyzer/internal/domain"
)

// DefaultModelName is the Gemini model used for both page extraction and
// labeling.
const DefaultModelName = "gemini-2.0-flash"

// Gemini reads statement pages and labels descriptions with the Gemini
// API. It implements ingest.PageExtractor and ingest.Labeler.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: DefaultModelName}, nil
}

const extractPrompt = `You are a credit card statement reader.

Read every transaction row and the billing details on the attached page
and output a single JSON object. No other text, no markdown.

Schema:
{
  "transactions": [
    {"trans_date": "2026-01-15", "posting_date": "2026-01-16",
     "description": "TMN 7-11 BANGKOK TH", "amount": 150.00,
     "is_payment": false}
  ],
  "cutoff_day": 20,
  "issuer_name": "KBank",
  "card_name": "Visa Platinum"
}

Rules:
- Always convert dates to YYYY-MM-DD. In dd/mm/yy statements the day
  comes first; expand two-digit years into the current century.
- amount is a plain number without thousands separators.
- is_payment is true for payment and billed-amount rows.
- cutoff_day is the billing cutoff day of month; null when not shown.
- issuer_name and card_name are null when not shown.
- Skip payment-method pages, pay-in slips, and interest-calculation
  example pages entirely: for those return
  {"transactions": [], "cutoff_day": null, "issuer_name": null, "card_name": null}.`

// ExtractPage sends one rendered page to the model and parses its JSON
// reply into candidate rows plus per-page metadata.
func (g *Gemini) ExtractPage(ctx context.Context, page domain.Page) (domain.PageExtraction, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: extractPrompt},
			{InlineData: &genai.Blob{MIMEType: page.MIMEType, Data: page.Data}},
		},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return domain.PageExtraction{}, fmt.Errorf("generate content: %w", err)
	}
	raw := resp.Text()
	if raw == "" {
		return domain.PageExtraction{}, fmt.Errorf("empty response from model")
	}

	var parsed pageJSON
	if err := json.Unmarshal([]byte(cleanModelJSON(raw, "{", "}")), &parsed); err != nil {
		return domain.PageExtraction{}, fmt.Errorf("unmarshal page JSON: %w", err)
	}
	return parsed.toDomain(), nil
}

// Label asks the model for a category/subcategory per description, with
// previously labeled rows as reference examples. Output order matches the
// input; validation against the fixed vocabulary is the caller's job.
func (g *Gemini) Label(ctx context.Context, descriptions []string, examples []domain.LabeledExample) ([]domain.Label, error) {
	if len(descriptions) == 0 {
		return nil, nil
	}

	prompt, err := buildLabelPrompt(descriptions, examples)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var labels []domain.Label
	if err := json.Unmarshal([]byte(cleanModelJSON(raw, "[", "]")), &labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if len(labels) != len(descriptions) {
		return nil, fmt.Errorf("got %d labels for %d descriptions", len(labels), len(descriptions))
	}
	return labels, nil
}

func buildLabelPrompt(descriptions []string, examples []domain.LabeledExample) (string, error) {
	descsJSON, err := json.Marshal(descriptions)
	if err != nil {
		return "", fmt.Errorf("marshal descriptions: %w", err)
	}
	vocabJSON, err := json.Marshal(domain.Subcategories)
	if err != nil {
		return "", fmt.Errorf("marshal vocabulary: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Categorize the following credit card expense descriptions.\n\n")
	sb.WriteString("Allowed categories: " + strings.Join(domain.Categories, ", ") + "\n")
	sb.WriteString("Allowed subcategories per category (JSON): " + string(vocabJSON) + "\n")
	if len(examples) > 0 {
		sb.WriteString("\nReference examples from this card's history:\n")
		for _, ex := range examples {
			sb.WriteString(fmt.Sprintf("- %q -> %s", ex.Description, ex.Category))
			if ex.Subcategory != "" {
				sb.WriteString(" / " + ex.Subcategory)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nDescriptions (JSON array):\n")
	sb.Write(descsJSON)
	sb.WriteString(`

Output a JSON array of objects, one per description, in input order:
[{"category": "convenience_store", "subcategory": "seven_eleven"}, ...]
Use "other" when unsure and null for an unknown subcategory.
No other text, no markdown.`)
	return sb.String(), nil
}

type pageJSON struct {
	Transactions []struct {
		TransDate   string  `json:"trans_date"`
		PostingDate string  `json:"posting_date"`
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
		IsPayment   bool    `json:"is_payment"`
	} `json:"transactions"`
	CutoffDay  *int    `json:"cutoff_day"`
	IssuerName *string `json:"issuer_name"`
	CardName   *string `json:"card_name"`
}

func (p pageJSON) toDomain() domain.PageExtraction {
	out := domain.PageExtraction{}
	for _, t := range p.Transactions {
		out.Transactions = append(out.Transactions, domain.ExtractedTransaction{
			TransDate:   t.TransDate,
			PostingDate: t.PostingDate,
			Description: t.Description,
			Amount:      t.Amount,
			IsPayment:   t.IsPayment,
		})
	}
	if p.CutoffDay != nil {
		out.CutoffDay = *p.CutoffDay
	}
	if p.IssuerName != nil {
		out.IssuerName = *p.IssuerName
	}
	if p.CardName != nil {
		out.CardName = *p.CardName
	}
	return out
}

// cleanModelJSON strips markdown fences and surrounding junk the model
// sometimes emits despite instructions, keeping only the outermost
// opener..closer span.
func cleanModelJSON(raw, opener, closer string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, opener); start != -1 {
		if end := strings.LastIndex(s, closer); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
