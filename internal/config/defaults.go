package config

const defaultSystemPrompt = `You are "Jumia Assistant", a professional, concise, helpful shopping assistant for Jumia Nigeria.
Keep tone friendly and professional (no profanity). Use ₦ when quoting prices.
If uncertain about live stock or prices, say so and give the product page link.
Only answer questions about shopping on Jumia: products, prices, orders, delivery, returns, warranty and payment.`

// RulesVersion identifies the built-in rules resource.
const RulesVersion = "2024-06-01"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Port:                  8080,
			Path:                  "/webhook/telegram",
			HandlerTimeoutSeconds: 90,
		},
		Telegram: TelegramConfig{
			SendTyping: true,
		},
		Completion: CompletionConfig{
			APIBase:        "https://api.fireworks.ai/inference/v1",
			Model:          "accounts/sentientfoundation-serverless/models/dobby-mini-unhinged-plus-llama-3-1-8b",
			MaxTokens:      512,
			Temperature:    0.4,
			TimeoutSeconds: 60,
		},
		Enricher: EnricherConfig{
			AllowedHosts:   []string{"jumia.com.ng", "jumia.com"},
			MaxURLs:        5,
			TimeoutMs:      8000,
			MaxConcurrency: 4,
			FetchMode:      "http",
			UserAgent:      "Mozilla/5.0 (compatible; shopbot/1.0)",
			MaxBodyBytes:   2 * 1024 * 1024,
			Product:        defaultProductSelectors(),
			Search: SearchConfig{
				Enabled:    true,
				BaseURL:    "https://www.jumia.com.ng",
				Path:       "/catalog/",
				QueryParam: "q",
				MaxResults: 3,
				Item:       "article.prd",
				Name:       []Strategy{{Selector: "h3.name"}, {Selector: ".name"}},
				Price:      []Strategy{{Selector: "div.prc"}, {Selector: ".prc"}},
				Link:       []Strategy{{Selector: "a.core", Attr: "href"}, {Selector: "a", Attr: "href"}},
			},
		},
		Rules:   defaultRules(),
		Replies: defaultReplies(),
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Burst:     10,
			PerMinute: 30,
			MaxWaitMs: 5000,
		},
		Dedup: DedupConfig{
			Backend:    "none",
			TTLSeconds: 600,
			SQLitePath: "~/.shopbot/dedup.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func defaultProductSelectors() ProductSelectors {
	return ProductSelectors{
		Title: []Strategy{
			{Selector: "h1"},
			{Selector: "meta[property='og:title']", Attr: "content"},
			{Selector: "title"},
		},
		Price: []Strategy{
			{Selector: "div.-fs24 span"},
			{Selector: "span.-b.-ltr.-fs24"},
			{Selector: "span.prc"},
			{Selector: "meta[property='product:price:amount']", Attr: "content"},
		},
		Availability: []Strategy{
			{Selector: "[data-testid='stock-availability']"},
			{Selector: "meta[property='product:availability']", Attr: "content"},
		},
	}
}

func defaultRules() RulesConfig {
	return RulesConfig{
		Version: RulesVersion,
		DomainKeywords: []string{
			"jumia", "order", "track", "refund", "return", "deliver", "shipping",
			"warranty", "payment", "pay on delivery", "voucher", "coupon", "discount",
			"cart", "checkout", "seller", "product", "stock", "flash sale",
		},
		Greetings: []string{
			"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
			"thanks", "thank you",
		},
		ProductPhrases: []string{
			"looking for", "need", "price of", "price", "how much", "buy", "deal",
			"best", "cheapest", "compare", " vs ", "under",
		},
		ProductNouns: []string{
			"phone", "laptop", "television", "fridge", "refrigerator", "air fryer",
			"blender", "generator", "headphone", "earbuds", "sneakers", "shoes",
			"watch", "tablet", "perfume", "microwave", "freezer", "speaker",
		},
		Facts: []FactTopic{
			{
				Topic:    "delivery",
				Keywords: []string{"deliver", "shipping"},
				Text:     "Delivery time and fee depend on the delivery address and the seller; the exact estimate is shown at checkout.",
			},
			{
				Topic:    "returns",
				Keywords: []string{"return", "refund"},
				Text:     "Eligible items can be returned within the return window shown on the product page; refunds are issued after the returned item is checked.",
			},
			{
				Topic:    "warranty",
				Keywords: []string{"warranty"},
				Text:     "Warranty terms are set per product and listed in the product specifications.",
			},
			{
				Topic:    "payment",
				Keywords: []string{"payment", "pay on delivery"},
				Text:     "Orders can be paid online at checkout or, where available, on delivery.",
			},
		},
		Profanity: []Substitution{
			{Term: "fuck", Replacement: "fudge"},
			{Term: "shit", Replacement: "shoot"},
			{Term: "damn", Replacement: "darn"},
			{Term: "hell", Replacement: "heck"},
			{Term: "crap", Replacement: "nonsense"},
			{Term: "bastard", Replacement: "rascal"},
			{Term: "idiot", Replacement: "friend"},
			{Term: "stupid", Replacement: "silly"},
		},
	}
}

func defaultReplies() RepliesConfig {
	return RepliesConfig{
		SystemPrompt: defaultSystemPrompt,
		Greeting:     "👋 Hi! I'm the Jumia Assistant. Paste a Jumia product link or ask about a product, an order, delivery or returns.",
		Start:        "👋 I'm the Jumia Assistant. Paste a Jumia link or ask for a product (e.g. 'air fryer under 50k').",
		Help:         "Send a Jumia product link for a summary, or ask for product options, delivery, returns or warranty info.",
		OutOfDomain:  "Sorry, I can only help with shopping on Jumia: products, prices, orders, delivery and returns.",
		Apology:      "⚠️ I ran into an error while trying to answer. Try again in a bit.",
		Fallback:     "Sorry, I couldn't generate a helpful reply.",
		FetchError:   "Could not fetch product details.",
		SearchError:  "Search failed.",
	}
}
