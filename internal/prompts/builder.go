package prompts

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/narravox/pkg/models"
)

// Builder assembles the prompt document a section sends to the model: the
// section template with the filtered comments spliced into its data block.
type Builder struct{}

// NewBuilder creates a new prompt builder instance
func NewBuilder() *Builder {
	return &Builder{}
}

// Build parses the template, replaces the content of its trailing element
// with one comment element per record, and re-serializes the whole
// document. The last element of the template root is the data placeholder
// by contract; every other part of the template passes through
// structurally untouched.
func (b *Builder) Build(template string, records []models.CommentRecord) (string, error) {
	doc, err := ParseDocument(template)
	if err != nil {
		return "", err
	}

	placeholder := doc.LastChild()
	if placeholder == nil {
		return "", fmt.Errorf("template root <%s> has no data placeholder element", doc.XMLName.Local)
	}

	placeholder.Text = ""
	placeholder.Children = make([]Node, 0, len(records))
	for _, rec := range records {
		placeholder.Children = append(placeholder.Children, commentNode(rec))
	}

	return doc.Serialize()
}

// commentNode renders one comment record as an element carrying its id and
// vote tallies as attributes and its text as content.
func commentNode(rec models.CommentRecord) Node {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "id"}, Value: strconv.Itoa(rec.ID)},
		{Name: xml.Name{Local: "agrees"}, Value: strconv.Itoa(rec.Votes.Agrees)},
		{Name: xml.Name{Local: "disagrees"}, Value: strconv.Itoa(rec.Votes.Disagrees)},
		{Name: xml.Name{Local: "passes"}, Value: strconv.Itoa(rec.Votes.Passes)},
		{Name: xml.Name{Local: "totalVotes"}, Value: strconv.Itoa(rec.Votes.Total)},
	}
	if rec.GroupAwareConsensus != nil {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "groupAwareConsensus"},
			Value: strconv.FormatFloat(*rec.GroupAwareConsensus, 'f', -1, 64),
		})
	}
	if rec.Extremity != nil {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "extremity"},
			Value: strconv.FormatFloat(*rec.Extremity, 'f', -1, 64),
		})
	}
	if rec.NumGroups != nil {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "numGroups"},
			Value: strconv.Itoa(*rec.NumGroups),
		})
	}

	return Node{
		XMLName: xml.Name{Local: "comment"},
		Attrs:   attrs,
		Text:    rec.Text,
	}
}
