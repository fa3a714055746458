package sync

import (
	"fmt"
	"net/http"
	"strings"

	"pipet/model/model"
)

// Provider glues one external service's descriptors to its transport
// details. Descriptors are enumerated statically and handed to the
// orchestrator at startup.
type Provider struct {
	Name   string
	Schema string
	// PageLimit records per page. Listing endpoints receive it as the
	// limit parameter; fixed-size exports use it to detect the last
	// page.
	PageLimit int
	BaseURL   func(account *model.Account) string
	Authorize func(account *model.Account, req *http.Request)
	// RequestHeaders added to every outbound call, e.g. a pinned API
	// version.
	RequestHeaders map[string]string
	Descriptors    []*Descriptor
	// Events is set for providers whose incremental sync is driven by
	// a reverse-chronological event feed instead of per-resource
	// polling.
	Events *EventFeed
}

// EventFeed describes a provider's change feed walked with an
// ending-before cursor after backfill completes.
type EventFeed struct {
	Endpoint string
	// Resource is the cursor map key for the feed position.
	Resource string
	// Route returns the descriptor for a pushed object's type
	// discriminator, nil for object types that are not mirrored.
	Route func(objectType string) *Descriptor
}

// DescriptorByName returns the named descriptor, nil when unknown.
func (p *Provider) DescriptorByName(name string) *Descriptor {
	for _, d := range p.Descriptors {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// TableNames lists every mirrored table of the provider, child tables
// included.
func (p *Provider) TableNames() []string {
	names := make([]string, 0, len(p.Descriptors))
	for _, d := range p.Descriptors {
		names = append(names, d.Name)
		if d.ChildRows != nil {
			names = append(names, d.ChildRows.Name)
		}
	}
	return names
}

// SchemaDDL generates the provisioning statements for every mirrored
// table of the provider, child tables included.
func (p *Provider) SchemaDDL() []string {
	ddl := make([]string, 0, len(p.Descriptors))
	for _, d := range p.Descriptors {
		ddl = append(ddl, d.tableDDL()...)
	}
	return ddl
}

func (d *Descriptor) tableDDL() []string {
	columns := []string{
		"account_id bigint NOT NULL",
		fmt.Sprintf("id %s NOT NULL", columnType(d.IDType)),
	}
	for i := range d.Fields {
		columns = append(columns, fmt.Sprintf("%s %s",
			d.Fields[i].column(), columnType(d.Fields[i].Type)))
	}
	columns = append(columns, "PRIMARY KEY (account_id, id)")

	ddl := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
		d.Schema, d.Name, strings.Join(columns, ", "))}

	if d.ChildRows != nil {
		child := d.ChildRows
		childColumns := []string{
			"account_id bigint NOT NULL",
			fmt.Sprintf("%s %s NOT NULL", child.ParentColumn, columnType(d.IDType)),
			"idx bigint NOT NULL",
		}
		for i := range child.Fields {
			childColumns = append(childColumns, fmt.Sprintf("%s %s",
				child.Fields[i].column(), columnType(child.Fields[i].Type)))
		}
		childColumns = append(childColumns, fmt.Sprintf(
			"PRIMARY KEY (account_id, %s, idx)", child.ParentColumn))

		ddl = append(ddl, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
			d.Schema, child.Name, strings.Join(childColumns, ", ")))
	}

	return ddl
}

func columnType(fieldType FieldType) string {
	switch fieldType {
	case FieldBigint:
		return "bigint"
	case FieldFloat:
		return "double precision"
	case FieldBool:
		return "boolean"
	case FieldTimeISO, FieldTimeUnix:
		return "timestamp"
	case FieldTextArray:
		return "text[]"
	case FieldBigintArray:
		return "bigint[]"
	case FieldJSON:
		return "jsonb"
	default:
		return "text"
	}
}
