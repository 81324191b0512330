package web

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"turnocal/internal/catalog"
	"turnocal/internal/service"
	"turnocal/internal/store"
)

// importResponse is the JSON shape for POST /api/imports and
// GET /api/results/{token}.
type importResponse struct {
	Token          string        `json:"token"`
	ID             string        `json:"id"`
	Filename       string        `json:"filename"`
	Hash           string        `json:"hash"`
	Partition      string        `json:"partition"`
	AlreadyPresent bool          `json:"already_present"`
	RowsAdded      int           `json:"rows_added"`
	TotalRows      int           `json:"total_rows"`
	Header         []string      `json:"header"`
	Rows           [][]string    `json:"rows"`
	Original       [][]string    `json:"original"`
	Anomalies      []anomalyDTO  `json:"anomalies"`
	Feeds          []feedLinkDTO `json:"feeds"`
	FeedError      string        `json:"feed_error,omitempty"`
}

type anomalyDTO struct {
	Person string `json:"person"`
	Day    int    `json:"day"`
	Token  string `json:"token"`
	Error  string `json:"error"`
}

type feedLinkDTO struct {
	Person   string `json:"person"`
	Download string `json:"download"`
}

func toImportResponse(res *service.ImportResult) importResponse {
	table := res.Roster.Table()
	out := importResponse{
		Token:          res.Token,
		ID:             res.ID,
		Filename:       res.Filename,
		Hash:           res.Hash,
		Partition:      res.Partition.Key(),
		AlreadyPresent: res.Merge.AlreadyPresent,
		RowsAdded:      res.Merge.Rows,
		TotalRows:      res.Merge.Total,
		Header:         table[0],
		Rows:           table[1:],
		Original:       res.Original,
		Anomalies:      make([]anomalyDTO, 0, len(res.Roster.Anomalies)),
		Feeds:          make([]feedLinkDTO, 0, len(res.Feeds)),
		FeedError:      res.FeedError,
	}
	for _, a := range res.Roster.Anomalies {
		out.Anomalies = append(out.Anomalies, anomalyDTO{Person: a.Person, Day: a.Day, Token: a.Token, Error: a.Error()})
	}
	for _, row := range res.Roster.Rows {
		if _, ok := res.Feeds[row.Name]; !ok {
			continue
		}
		out.Feeds = append(out.Feeds, feedLinkDTO{
			Person:   row.Name,
			Download: downloadURL(row.Name, res.Partition.Month, res.Partition.Year),
		})
	}
	return out
}

type partitionDTO struct {
	Partition string `json:"partition"`
	Month     string `json:"month"`
	Year      int    `json:"year"`
	Rows      int    `json:"rows"`
}

func toPartitionDTOs(infos []store.PartitionInfo) []partitionDTO {
	out := make([]partitionDTO, 0, len(infos))
	for _, info := range infos {
		out = append(out, partitionDTO{
			Partition: info.Partition.Key(),
			Month:     info.Partition.Month.String(),
			Year:      info.Partition.Year,
			Rows:      info.Rows,
		})
	}
	return out
}

// personalViewResponse is the JSON shape for the personal view.
type personalViewResponse struct {
	Partition string     `json:"partition"`
	Person    string     `json:"person"`
	Header    []string   `json:"header"`
	Decoded   [][]string `json:"decoded"`
	Original  [][]string `json:"original"`
	Download  string     `json:"download"`
}

func toPersonalView(v *service.PersonalView) personalViewResponse {
	out := personalViewResponse{
		Partition: v.Partition.Key(),
		Person:    v.Person,
		Header:    v.Header,
		Decoded:   make([][]string, 0, len(v.Decoded)),
		Original:  v.Original,
		Download:  downloadURL(v.Person, v.Partition.Month, v.Partition.Year),
	}
	if out.Original == nil {
		out.Original = [][]string{}
	}
	for _, row := range v.Decoded {
		out.Decoded = append(out.Decoded, row.Record())
	}
	return out
}

type slotResponse struct {
	Partition string   `json:"partition"`
	Day       int      `json:"day"`
	Value     string   `json:"value"`
	People    []string `json:"people"`
}

type importDTO struct {
	ID             string    `json:"id"`
	Hash           string    `json:"hash"`
	Partition      string    `json:"partition"`
	Filename       string    `json:"filename"`
	Rows           int       `json:"rows"`
	Anomalies      int       `json:"anomalies"`
	AlreadyPresent bool      `json:"already_present"`
	ImportedAt     time.Time `json:"imported_at"`
}

func toImportDTOs(imps []catalog.Import) []importDTO {
	out := make([]importDTO, 0, len(imps))
	for _, imp := range imps {
		out = append(out, importDTO(imp))
	}
	return out
}

func downloadURL(person string, month time.Month, year int) string {
	return "/download/" + url.PathEscape(person) + "/" + strings.ToLower(month.String()) + "?year=" + strconv.Itoa(year)
}
