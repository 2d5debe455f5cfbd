package content

// phrasePool holds the per-language phrase banks the generator selects
// from. The banks are content collaborators: the generation algorithm
// only cares about their shape.
type phrasePool struct {
	subjects   map[TemplateType][]string
	greetings  []string
	paragraphs []string
	closings   []string
	signatures []string
}

var pools = map[string]phrasePool{
	"en": {
		subjects: map[TemplateType][]string{
			TypeGreeting: {
				"Quick hello from {{sender_name}}",
				"Checking in",
				"Hope your week is going well",
				"Long time no talk",
			},
			TypeQuestion: {
				"Quick question about {{topic}}",
				"Do you have a minute?",
				"Wanted your thoughts on {{topic}}",
			},
			TypeUpdate: {
				"Small update on {{topic}}",
				"News from my side",
				"Progress update",
			},
			TypeThanks: {
				"Thanks again",
				"Appreciated your help",
				"Thank you for the other day",
			},
		},
		greetings: []string{
			"Hi {{receiver_name}},",
			"Hello {{receiver_name}},",
			"Hey {{receiver_name}},",
			"Good day {{receiver_name}},",
		},
		paragraphs: []string{
			"I was going through my inbox and remembered I owed you a message. Things have been busy over here but in a good way.",
			"The weather has finally turned, so I have been trying to spend more time outside. How are things on your end?",
			"Work has been steady lately. A few new projects landed on my desk this month and they are keeping me on my toes.",
			"I tried that recommendation you mentioned a while back and it was spot on. I should trust your taste more often.",
			"Nothing urgent on my side, just wanted to keep in touch and see how everything is going for you.",
			"I have been meaning to reorganize my schedule so these messages do not pile up. Easier said than done.",
		},
		closings: []string{
			"Talk soon,",
			"Best regards,",
			"All the best,",
			"Take care,",
			"Cheers,",
		},
		signatures: []string{
			"{{sender_name}}",
			"{{sender_name}}\n{{sender_email}}",
		},
	},
	"pt": {
		subjects: map[TemplateType][]string{
			TypeGreeting: {
				"Um alô rápido de {{sender_name}}",
				"Passando para dar um oi",
				"Espero que a semana esteja boa",
			},
			TypeQuestion: {
				"Pergunta rápida sobre {{topic}}",
				"Você tem um minuto?",
			},
			TypeUpdate: {
				"Pequena atualização sobre {{topic}}",
				"Novidades por aqui",
			},
			TypeThanks: {
				"Obrigado mais uma vez",
				"Agradeço a ajuda",
			},
		},
		greetings: []string{
			"Oi {{receiver_name}},",
			"Olá {{receiver_name}},",
			"Bom dia {{receiver_name}},",
		},
		paragraphs: []string{
			"Estava revendo minha caixa de entrada e lembrei que devia uma mensagem a você. As coisas andam corridas por aqui, mas no bom sentido.",
			"O trabalho tem estado estável ultimamente. Alguns projetos novos chegaram este mês e estão me mantendo ocupado.",
			"Nada urgente do meu lado, só queria manter o contato e saber como estão as coisas por aí.",
			"Finalmente o tempo melhorou, então tenho tentado passar mais tempo ao ar livre. Como estão as coisas com você?",
		},
		closings: []string{
			"Até breve,",
			"Abraços,",
			"Tudo de bom,",
		},
		signatures: []string{
			"{{sender_name}}",
			"{{sender_name}}\n{{sender_email}}",
		},
	},
}

// defaultLanguage is used when the requested language has no pool.
const defaultLanguage = "en"
