package webhook

import (
	"github.com/schoolbot/schoolbot/internal/resolver"
	"github.com/schoolbot/schoolbot/internal/textnorm"
)

// SkillRequest is the subset of the chat-skill envelope the bot reads
type SkillRequest struct {
	UserRequest struct {
		Utterance string `json:"utterance"`
		User      struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"userRequest"`
}

// SkillResponse is the version 2.0 chat-skill reply
type SkillResponse struct {
	Version  string   `json:"version"`
	Template Template `json:"template"`
}

// Template holds the rendered outputs and the quick reply menu
type Template struct {
	Outputs      []Output     `json:"outputs"`
	QuickReplies []QuickReply `json:"quickReplies,omitempty"`
}

// Output is one speech bubble; exactly one field is set
type Output struct {
	SimpleText *SimpleText `json:"simpleText,omitempty"`
	TextCard   *TextCard   `json:"textCard,omitempty"`
	ListCard   *ListCard   `json:"listCard,omitempty"`
}

// SimpleText is a plain text bubble
type SimpleText struct {
	Text string `json:"text"`
}

// TextCard is text with buttons underneath
type TextCard struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Button is a card button
type Button struct {
	Label      string `json:"label"`
	Action     string `json:"action"`
	WebLinkURL string `json:"webLinkUrl,omitempty"`
}

// ListCard is a titled list of links
type ListCard struct {
	Header ListHeader `json:"header"`
	Items  []ListItem `json:"items"`
}

// ListHeader titles a list card
type ListHeader struct {
	Title string `json:"title"`
}

// ListItem is one list card row
type ListItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Link        *ItemLink `json:"link,omitempty"`
}

// ItemLink is where a list item opens
type ItemLink struct {
	Web string `json:"web"`
}

// QuickReply is a menu chip that sends its message text back
type QuickReply struct {
	Label       string `json:"label"`
	Action      string `json:"action"`
	MessageText string `json:"messageText"`
}

const (
	skillVersion   = "2.0"
	linkButton     = "자세히 보기"
	listCardHeader = "관련 안내 페이지"
)

// DefaultQuickReplies is the menu offered under every reply
var DefaultQuickReplies = []QuickReply{
	{Label: "학사일정", Action: "message", MessageText: "학사일정"},
	{Label: "오늘 급식", Action: "message", MessageText: "오늘 급식"},
	{Label: "가정통신문", Action: "message", MessageText: "가정통신문"},
}

// Render turns a resolution result into a skill response
func Render(res *resolver.Result, quickReplies []QuickReply) SkillResponse {
	var out Output

	switch {
	case res.IsAnswer():
		out = answerOutput(res.Text, res.Link)
	case res.Kind == resolver.KindLinkCards && len(res.Cards) > 0:
		card := &ListCard{Header: ListHeader{Title: listCardHeader}}
		for _, c := range res.Cards {
			card.Items = append(card.Items, ListItem{
				Title:       c.Title,
				Description: c.Snippet,
				Link:        &ItemLink{Web: c.URL},
			})
		}
		out = Output{ListCard: card}
	default:
		text := res.Text
		if res.Hint != "" {
			text += "\n" + res.Hint
		}
		out = Output{SimpleText: &SimpleText{Text: text}}
	}

	return SkillResponse{
		Version: skillVersion,
		Template: Template{
			Outputs:      []Output{out},
			QuickReplies: quickReplies,
		},
	}
}

// answerOutput renders an answer with its link as a button. An answer with
// no separate link has its first URL detached instead.
func answerOutput(text, link string) Output {
	body := text
	if link == "" {
		body, link = textnorm.SplitLink(text)
	}
	if link == "" {
		return Output{SimpleText: &SimpleText{Text: body}}
	}
	return Output{TextCard: &TextCard{
		Text:    body,
		Buttons: []Button{{Label: linkButton, Action: "webLink", WebLinkURL: link}},
	}}
}
