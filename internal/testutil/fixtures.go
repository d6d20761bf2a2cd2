package testutil

import "github.com/leapstack-labs/leaplineage/internal/lineage"

// Entity ids of the fact_session sample lineage.
const (
	FactSessionID      = "f80de28c-ecce-46fb-88c7-152cc111f9ec"
	DimCustomerID      = "5f2eee5d-1c08-4756-af31-dabce7cb26fd"
	StorageServiceID   = "92d7cb90-cc49-497a-9b01-18f4c6a61951"
	DimAddressID       = "2d30f754-05de-4372-af27-f221997bfe9a"
	DashboardServiceID = "b5d520fd-a4a5-4173-85d5-f804ddab452a"
	DimProductID       = "bf99a241-76e9-4947-86a7-c9bf3c326974"
	DimAddressETLID    = "d4aab894-5877-44f1-840c-b08a2dc664a4"
	PrestoETLID        = "5a51ea54-8304-4fa8-a7b2-1f083ff1580c"
)

const (
	shopify    = "sample_data.ecommerce_db.shopify."
	openmetaDB = "mysql.default.openmetadata_db."
)

// Column FQNs used by the sample column lineage.
const (
	CustomerIDColumn          = shopify + "dim_customer.customer_id"
	DerivedSessionTokenColumn = shopify + "fact_session.derived_session_token"
	AddressIDColumn           = shopify + "dim_address.address_id"
	TotalOrderValueColumn     = shopify + "dim_customer.total_order_value"
	DashboardServiceIDColumn  = openmetaDB + "dashboard_service_entity.id"
	AddressShopIDColumn       = shopify + "dim_address.shop_id"
	ProductShopIDColumn       = shopify + `"dim.product".shop_id`
	AddressFirstNameColumn    = shopify + "dim_address.first_name"
)

func table(id, name, fqn string) lineage.EntityRef {
	return lineage.EntityRef{
		ID:                 id,
		Type:               lineage.EntityTable,
		Name:               name,
		FullyQualifiedName: fqn,
		Href:               "http://localhost:8585/api/v1/tables/" + id,
	}
}

func pipeline(id, name, displayName string) lineage.EntityRef {
	return lineage.EntityRef{
		ID:                 id,
		Type:               lineage.EntityPipeline,
		Name:               name,
		FullyQualifiedName: "sample_airflow." + name,
		DisplayName:        displayName,
		Description:        displayName + " pipeline",
		Href:               "http://localhost:8585/api/v1/pipelines/" + id,
	}
}

func columnEdge(from, to, fromColumn, toColumn string) lineage.Edge {
	return lineage.Edge{
		FromEntity: from,
		ToEntity:   to,
		LineageDetails: &lineage.LineageDetail{
			ColumnsLineage: []lineage.ColumnMapping{
				{FromColumns: []string{fromColumn}, ToColumn: toColumn},
			},
		},
	}
}

// FactSession returns the sample lineage of fact_session: seven upstream
// edges and one downstream edge to storage_service_entity. A new value is
// returned on every call.
func FactSession() lineage.Graph {
	return lineage.Graph{
		Entity: table(FactSessionID, "fact_session", shopify+"fact_session"),
		Nodes: []lineage.EntityRef{
			table(DimCustomerID, "dim_customer", shopify+"dim_customer"),
			table(StorageServiceID, "storage_service_entity", openmetaDB+"storage_service_entity"),
			table(DimAddressID, "dim_address", shopify+"dim_address"),
			table(DashboardServiceID, "dashboard_service_entity", openmetaDB+"dashboard_service_entity"),
			table(DimProductID, "dim.product", shopify+`"dim.product"`),
			pipeline(DimAddressETLID, "dim_address_etl", "dim_address etl"),
			pipeline(PrestoETLID, "presto_etl", "Presto ETL"),
		},
		UpstreamEdges: []lineage.Edge{
			columnEdge(DimAddressID, DimCustomerID, AddressIDColumn, TotalOrderValueColumn),
			columnEdge(DimCustomerID, FactSessionID, CustomerIDColumn, DerivedSessionTokenColumn),
			{FromEntity: StorageServiceID, ToEntity: FactSessionID},
			columnEdge(DashboardServiceID, DimAddressID, DashboardServiceIDColumn, AddressShopIDColumn),
			columnEdge(DimProductID, DimAddressID, ProductShopIDColumn, AddressFirstNameColumn),
			{FromEntity: DimAddressETLID, ToEntity: DimAddressID},
			{FromEntity: PrestoETLID, ToEntity: StorageServiceID},
		},
		DownstreamEdges: []lineage.Edge{
			{FromEntity: FactSessionID, ToEntity: StorageServiceID},
		},
	}
}

// FactSessionColumns returns catalog columns for the sample tables, keyed by
// entity id.
func FactSessionColumns() map[string][]lineage.Column {
	col := func(fqn, dataType string) lineage.Column {
		parts := lineage.SplitFQN(fqn)
		return lineage.Column{Name: parts[len(parts)-1], FullyQualifiedName: fqn, DataType: dataType}
	}
	return map[string][]lineage.Column{
		FactSessionID: {
			col(shopify+"fact_session.session_id", "NUMERIC"),
			col(DerivedSessionTokenColumn, "VARCHAR"),
		},
		DimCustomerID: {
			col(CustomerIDColumn, "NUMERIC"),
			col(TotalOrderValueColumn, "NUMERIC"),
			col(shopify+"dim_customer.first_name", "VARCHAR"),
		},
		DimAddressID: {
			col(AddressIDColumn, "NUMERIC"),
			col(AddressShopIDColumn, "NUMERIC"),
			col(AddressFirstNameColumn, "VARCHAR"),
		},
	}
}
