package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"lmswatch/internal/events"
)

const embedColor = 0x00ff00

// eventEmbed builds the notification embed for a list of events.
func eventEmbed(title string, evts []events.Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: embedColor,
	}

	for _, ev := range evts {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   categoryEmoji(ev.Category),
			Value:  formatEvent(ev),
			Inline: false,
		})
	}

	return embed
}

func formatEvent(ev events.Event) string {
	return fmt.Sprintf("📅 **%s**\n📌 %s", ev.DateText, ev.Title)
}

func categoryEmoji(c events.Category) string {
	switch c {
	case events.CategoryAssignment:
		return "📝 Assignment"
	case events.CategoryQuiz:
		return "✏️ Quiz"
	default:
		return "📣 Event"
	}
}
