package core

// CalculateCost returns the raw provider cost in USD for the given token counts.
func CalculateCost(promptTokens, completionTokens int, pricing ModelPricing) float64 {
	return (float64(promptTokens)/1000)*pricing.InputPer1KTokens +
		(float64(completionTokens)/1000)*pricing.OutputPer1KTokens
}

// ApplyMarkup adds a percentage markup to cost.
func ApplyMarkup(cost, percentage float64) float64 {
	return cost * (1 + percentage/100)
}

// Bill computes the standard cost breakdown: provider cost plus platform markup.
func Bill(usage TokenUsage, pricing ModelPricing) CostBreakdown {
	providerCost := CalculateCost(usage.PromptTokens, usage.CompletionTokens, pricing)
	return CostBreakdown{
		ProviderCostUSD:  providerCost,
		CencoriChargeUSD: ApplyMarkup(providerCost, pricing.CencoriMarkupPercentage),
		MarkupPercentage: pricing.CencoriMarkupPercentage,
	}
}

// BillFor uses the provider's own billing rule when it has one.
func BillFor(p Provider, usage TokenUsage, pricing ModelPricing) CostBreakdown {
	if b, ok := p.(Biller); ok {
		return b.Bill(usage, pricing)
	}
	return Bill(usage, pricing)
}
