package llm

// ProviderKind is the tagged enum selecting a provider client variant.
// All branching on provider families happens where a ProviderKind is
// resolved into a Client, nowhere else.
type ProviderKind int

const (
	KindOpenAI ProviderKind = iota
	KindGemini
	KindAnthropic
	KindCustom
)

// KindFromString maps a stored provider type onto the enum. Unknown and
// custom types both resolve to KindCustom, which speaks the
// OpenAI-compatible wire shape.
func KindFromString(s string) ProviderKind {
	switch s {
	case "openai":
		return KindOpenAI
	case "gemini":
		return KindGemini
	case "anthropic":
		return KindAnthropic
	default:
		return KindCustom
	}
}

func (k ProviderKind) String() string {
	switch k {
	case KindOpenAI:
		return "openai"
	case KindGemini:
		return "gemini"
	case KindAnthropic:
		return "anthropic"
	default:
		return "custom"
	}
}
