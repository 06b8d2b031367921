package locale

// Catalog templates. Verbs, in order:
//
//	release.new:         item name, release label, site name
//	release.read_online: url
//	channel.hint:        channel configuration command
var catalogs = map[string]map[string]string{
	"en-US": {
		KeyNewRelease:  "New release of %s! %s is now available on %s.",
		KeyReadOnline:  "Read it online: %s",
		KeyChannelHint: "No alert channel is configured for this server. An administrator can pick one with %s.",
	},
	"pt-BR": {
		KeyNewRelease:  "Novo lançamento de %s! %s já está disponível em %s.",
		KeyReadOnline:  "Leia online: %s",
		KeyChannelHint: "Nenhum canal de avisos está configurado para este servidor. Um administrador pode definir um com %s.",
	},
	"es-ES": {
		KeyNewRelease:  "¡Nuevo lanzamiento de %s! %s ya está disponible en %s.",
		KeyReadOnline:  "Léelo en línea: %s",
		KeyChannelHint: "Este servidor no tiene un canal de avisos configurado. Un administrador puede elegir uno con %s.",
	},
}
