package fbref

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gktracker/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
)

// SeasonPlaceholder marks where the season goes in Player.MatchLogsUrlTemplate.
const SeasonPlaceholder = "{season}"

const playerLinkSelector = `td[data-stat="player"] a[href]`

var playerPathRegex = regexp.MustCompile(`^/en/players/([^/]+)/([^/]+)$`)

type Player struct {
	Id   string
	Slug string
	// Url is the absolute player page url.
	Url string
	// MatchLogsUrlTemplate contains SeasonPlaceholder.
	MatchLogsUrlTemplate string
}

// MatchLogsUrl renders the match log url for a season, ex. "2024-2025".
func (p Player) MatchLogsUrl(season string) string {
	return strings.ReplaceAll(p.MatchLogsUrlTemplate, SeasonPlaceholder, season)
}

// DiscoverPlayers collects the players linked from each competition page in
// order. Players are de-duplicated by id, the first occurrence wins.
func (c *Client) DiscoverPlayers(ctx context.Context, pages []string) ([]Player, error) {
	ctx, span := tracer.Start(ctx, "client:DiscoverPlayers")
	defer span.End()

	var players []Player
	seen := map[string]struct{}{}
	for _, page := range pages {
		link, err := c.resolve(page)
		if err != nil {
			return nil, fmt.Errorf("resolve discovery url %s: %w", page, err)
		}
		doc, err := c.fetchPage(ctx, link)
		if err != nil {
			return nil, err
		}

		for _, p := range c.playersFromDocument(ctx, doc) {
			if _, ok := seen[p.Id]; ok {
				continue
			}
			seen[p.Id] = struct{}{}
			players = append(players, p)
		}
	}

	span.SetAttributes(attribute.Int("players", len(players)))
	c.tel.ReportCount(report_count_players, int64(len(players)))
	return players, nil
}

func (c *Client) playersFromDocument(ctx context.Context, doc *goquery.Document) []Player {
	anchors := htmlutil.GetAnchors(ctx, doc.Find(playerLinkSelector))
	// stats tables past the first one are shipped inside html comments
	for _, hidden := range htmlutil.CommentedDocuments(doc, `data-stat="player"`) {
		anchors = append(anchors, htmlutil.GetAnchors(ctx, hidden.Find(playerLinkSelector))...)
	}

	var players []Player
	for _, a := range anchors {
		href, err := url.Parse(a.Href)
		if err != nil {
			c.tel.ReportWarning(report_discover_bad_href, a.Href, err)
			continue
		}
		groups := playerPathRegex.FindStringSubmatch(href.Path)
		if groups == nil {
			continue
		}
		id, slug := groups[1], groups[2]

		playerUrl, err := c.resolve(href.Path)
		if err != nil {
			c.tel.ReportWarning(report_discover_bad_href, a.Href, err)
			continue
		}
		players = append(players, Player{
			Id:   id,
			Slug: slug,
			Url:  playerUrl,
			MatchLogsUrlTemplate: fmt.Sprintf(
				"%s/en/players/%s/matchlogs/%s/%s-Match-Logs",
				c.BaseUrl.String(), id, SeasonPlaceholder, slug,
			),
		})
	}
	return players
}
