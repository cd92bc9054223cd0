package deepgram

type Voice string

const (
	VoiceThalia    Voice = "aura-2-thalia-en"
	VoiceAndromeda Voice = "aura-2-andromeda-en"
	VoiceOrion     Voice = "aura-2-orion-en"
	VoiceArcas     Voice = "aura-2-arcas-en"
	VoiceApollo    Voice = "aura-2-apollo-en"
	VoiceZeus      Voice = "aura-2-zeus-en"

	DefaultVoice = VoiceThalia
)

func GetAvailableVoices() []Voice {
	return []Voice{
		VoiceThalia,
		VoiceAndromeda,
		VoiceOrion,
		VoiceArcas,
		VoiceApollo,
		VoiceZeus,
	}
}
