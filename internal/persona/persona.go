// Package persona holds the locale-keyed persona table. It is the single
// source for both the written persona (chat system prompt) and the spoken
// persona (realtime session instructions), so the two cannot drift.
package persona

import "strings"

// Variant is a supported locale variant tag.
type Variant string

const (
	EnUS  Variant = "en-US"
	EnGB  Variant = "en-GB"
	EsES  Variant = "es-ES"
	EsLat Variant = "es-419"

	// Default is used for empty or unrecognized variants.
	Default = EnUS
)

// Persona pairs the two instruction renditions for one locale variant.
type Persona struct {
	Variant Variant

	// Chat is prepended as the system instruction on the text relay path.
	Chat string

	// Voice is sent as session instructions on the realtime path. It is
	// longer than Chat: it carries pronunciation and vocabulary guidance
	// that only matters when speech is synthesized.
	Voice string
}

var table = map[Variant]Persona{
	EnUS: {
		Variant: EnUS,
		Chat:    "You are Brenda. Respond in American English with a warm, natural tone.",
		Voice: "You are a voice assistant. Speak American English.\n" +
			"- Prefer US vocabulary (cell phone, elevator, truck, gas).\n" +
			"Be warm, natural, and concise.",
	},
	EnGB: {
		Variant: EnGB,
		Chat:    "You are Brenda. Respond in British English with a warm, natural tone.",
		Voice: "You are a voice assistant. Speak British English.\n" +
			"- Prefer UK vocabulary (mobile, lift, lorry, petrol).\n" +
			"- Use natural UK phrasing and spelling when transcribing.\n" +
			"Be warm, natural, and concise.",
	},
	EsES: {
		Variant: EsES,
		Chat:    "Eres Brenda. Responde en español de España (castellano peninsular), con tono cálido y natural.",
		Voice: "Eres una asistente de voz. Habla en español de España (castellano peninsular).\n" +
			"- Pronunciación y entonación propias de España.\n" +
			"- Usa “vosotros”, “vale”, “de acuerdo”.\n" +
			"- Vocabulario preferido: “ordenador”, “móvil”, “coche”, “zumo”.\n" +
			"- Evita voseo (“vos”) y expresiones típicas de Latinoamérica (“chévere”, “computadora”, “carro”).\n" +
			"Responde de forma natural, cálida y concisa.",
	},
	EsLat: {
		Variant: EsLat,
		Chat:    "Eres Brenda. Responde en español latinoamericano neutro, con tono cálido y natural.",
		Voice: "Eres una asistente de voz. Habla en español latinoamericano neutro.\n" +
			"- Usa “ustedes” (no “vosotros”).\n" +
			"- Vocabulario preferido: “computadora”, “celular”, “carro”, “jugo”.\n" +
			"- Evita modismos muy locales de un solo país.\n" +
			"Responde de forma natural, cálida y concisa.",
	},
}

// Resolve returns the persona for the given variant tag, falling back to
// the default for anything unrecognized (including the empty string).
func Resolve(variant string) Persona {
	if p, ok := table[Variant(variant)]; ok {
		return p
	}
	return table[Default]
}

// Detect maps a list of preferred language tags (most preferred first) to
// a supported variant. Spanish resolves to es-ES only for the ES region;
// any other Spanish region gets the neutral LatAm variant. English resolves
// to en-GB for GB, en-US otherwise. Everything else falls back to en-US.
func Detect(tags []string) Variant {
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		lang, region, _ := strings.Cut(tag, "-")
		switch lang {
		case "es":
			if region == "es" {
				return EsES
			}
			return EsLat
		case "en":
			if region == "gb" {
				return EnGB
			}
			return EnUS
		}
	}
	return Default
}
