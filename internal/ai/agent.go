// Package ai is a read-only inventory assistant on top of Gemini function
// calling. It never mutates the store: every write goes through the sync
// paths so it is deduplicated and audited.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go-pos-sync/internal/database"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/repository"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const (
	defaultModel = "gemini-2.0-flash-001"
	// maxToolRounds bounds the call/response ping-pong of one question.
	maxToolRounds = 4
)

var errNoCandidates = errors.New("assistant returned no candidates")

// Agent answers questions about stock and sales.
type Agent struct {
	apiKey   string
	model    string
	repo     repository.Repository
	db       *gorm.DB
	lowStock models.LowStockPolicy
	now      func() time.Time
}

func NewAgent(apiKey string, repo repository.Repository, db *gorm.DB, policy models.LowStockPolicy) *Agent {
	return &Agent{apiKey: apiKey, model: defaultModel, repo: repo, db: db, lowStock: policy, now: time.Now}
}

var tools = []*genai.Tool{
	{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "Get the full inventory list. Use this to find ANY product details like ID, Name, Price, Cost, Stock or Beneficiary.",
			},
			{
				Name:        "list_low_stock",
				Description: "List products whose quantity is under their low stock threshold.",
			},
			{
				Name:        "get_sales_report",
				Description: "Get total sales revenue and count for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
		},
	},
}

func (a *Agent) systemPrompt(message string) string {
	return fmt.Sprintf(`SYSTEM: Today is %s. You are a read-only POS inventory assistant.

	RULES:
	1. If a user asks for PRICE, COST, STOCK or DETAILS of a product, call 'check_inventory' and read the result.
	2. If the user asks what needs restocking, call 'list_low_stock'.
	3. If the user asks for sales/revenue, use 'get_sales_report'.
	4. You cannot change prices, stock or products. Tell the user to use the product screen.

	USER: %s`, a.now().Format("2006-01-02"), message)
}

// Ask runs one question through the model, answering its tool calls until
// it produces text.
func (a *Agent) Ask(ctx context.Context, message string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	model.Tools = tools
	session := model.StartChat()

	resp, err := session.SendMessage(ctx, genai.Text(a.systemPrompt(message)))
	if err != nil {
		return "", err
	}

	for round := 0; round < maxToolRounds; round++ {
		calls, text, err := split(resp)
		if err != nil {
			return "", err
		}
		if len(calls) == 0 {
			return text, nil
		}

		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: a.runTool(ctx, call)})
		}
		if resp, err = session.SendMessage(ctx, parts...); err != nil {
			return "", err
		}
	}
	return "I could not finish that request.", nil
}

func split(resp *genai.GenerateContentResponse) ([]genai.FunctionCall, string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", errNoCandidates
	}
	var calls []genai.FunctionCall
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			calls = append(calls, p)
		case genai.Text:
			text += string(p)
		}
	}
	if text == "" {
		text = "I completed the action."
	}
	return calls, text, nil
}

type simpleProduct struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Stock       int     `json:"stock"`
	Price       float64 `json:"price"`
	Cost        float64 `json:"cost"`
	Beneficiary string  `json:"beneficiary"`
}

func simplify(products []models.Product) []simpleProduct {
	out := make([]simpleProduct, 0, len(products))
	for _, p := range products {
		out = append(out, simpleProduct{
			ID: p.ID, Name: p.Name, Stock: p.Quantity, Price: p.Price, Cost: p.Cost,
			Beneficiary: string(p.Beneficiary),
		})
	}
	return out
}

// runTool executes one function call; failures are reported back to the model.
func (a *Agent) runTool(ctx context.Context, call genai.FunctionCall) map[string]any {
	switch call.Name {
	case "check_inventory":
		products, err := a.repo.ListProducts(ctx)
		if err != nil {
			return toolError(call.Name, err)
		}
		return map[string]any{"inventory": simplify(products)}

	case "list_low_stock":
		products, err := a.repo.ListProducts(ctx)
		if err != nil {
			return toolError(call.Name, err)
		}
		return map[string]any{"low_stock": simplify(models.FilterLowStock(products, a.lowStock))}

	case "get_sales_report":
		startStr, _ := call.Args["start_date"].(string)
		endStr, _ := call.Args["end_date"].(string)
		start, err1 := time.Parse("2006-01-02", startStr)
		end, err2 := time.Parse("2006-01-02", endStr)
		if err1 != nil || err2 != nil {
			return map[string]any{"error": "Dates must be in YYYY-MM-DD format."}
		}
		end = end.Add(24*time.Hour - time.Second)

		report, err := database.GetSalesReport(a.db.WithContext(ctx), start, end)
		if err != nil {
			return toolError(call.Name, err)
		}
		return map[string]any{"revenue": report.TotalRevenue, "sales_count": report.TotalCount}
	}
	return map[string]any{"error": "unknown tool " + call.Name}
}

func toolError(name string, err error) map[string]any {
	log.Printf("⚠️ [AI] tool %s failed: %v", name, err)
	return map[string]any{"error": err.Error()}
}
