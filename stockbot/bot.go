// Package stockbot answers short stock and investing questions through an LLM.
package stockbot

import (
	"context"
	"strings"

	"stockverse/observability"
)

// Canned replies
const (
	EmptyQuestionReply = "Please enter a stock-related question."
	FailureReply       = "Sorry, I couldn't process that. Please ask a stock-related question!"
)

const systemPrompt = `You are StockBot, an AI-powered chatbot designed to assist users with stock trading and investment queries.
Your goal is to provide quick, accurate, and actionable answers related to stocks, investments, and portfolio management.

Tone: professional, clear, and concise.
Response style: short (1-2 sentences), direct, and focused on stocks.
What to provide: stock market insights, trading strategies, portfolio advice, or explanations of stock-related terms.
No generic replies: always give specific, actionable information such as market trends, stock analysis tips, or risk management strategies.
Do not answer non-stock questions: if the query is unrelated to stocks or investments, politely redirect the user to ask a stock-related question.

How to respond:
1. If the user asks about a specific stock (e.g. AAPL), give basic insights such as recent performance, key metrics like the P/E ratio, or news impact, and suggest checking real-time data or consulting a financial advisor for detailed analysis.
2. If the user asks about trading strategies, offer beginner-friendly tips (diversification, stop-loss orders, long-term investing) and explain risks and benefits concisely.
3. If the user asks about portfolio management, suggest allocation strategies, rebalancing tips, or risk assessment methods, and recommend tools for tracking portfolios.
4. If the query is vague or off-topic, politely ask for clarification or redirect to stock-related topics (e.g. "Could you specify a stock or trading question?").`

// LLM is the completion call the bot needs
type LLM interface {
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Bot answers questions. A Bot without an LLM always returns FailureReply.
type Bot struct {
	llm LLM
}

// New creates a Bot backed by llm, which may be nil
func New(llm LLM) *Bot {
	return &Bot{llm: llm}
}

// Available reports whether an LLM is configured
func (b *Bot) Available() bool {
	return b.llm != nil
}

// Ask returns StockBot's reply to message. It never fails; problems are
// logged and answered with FailureReply.
func (b *Bot) Ask(ctx context.Context, message string) string {
	metrics := observability.GetMetrics()

	message = strings.TrimSpace(message)
	if message == "" {
		metrics.RecordStockbotQuestion("empty")
		return EmptyQuestionReply
	}
	if b.llm == nil {
		metrics.RecordStockbotQuestion("unavailable")
		return FailureReply
	}

	reply, err := b.llm.InvokeWithPrompt(ctx, systemPrompt, message)
	if err != nil {
		metrics.RecordStockbotQuestion("error")
		observability.WithContext(ctx).Warn("stockbot completion failed", "error", err)
		return FailureReply
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		metrics.RecordStockbotQuestion("error")
		return FailureReply
	}

	metrics.RecordStockbotQuestion("answered")
	return reply
}
