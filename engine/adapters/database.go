package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/velora-labs/conversa/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DBResult resultado normalizado de una invocación del adaptador de base de
// datos. Exactamente uno de los dos desenlaces: éxito con filas/afectadas o
// fallo con mensaje.
type DBResult struct {
	Success      bool             `json:"success"`
	Rows         []map[string]any `json:"rows,omitempty"`
	Affected     int64            `json:"affected,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
}

// StoredValue retorna el valor a guardar en la variable destino
func (r DBResult) StoredValue() map[string]any {
	out := map[string]any{"success": r.Success}
	if r.Success {
		if r.Rows != nil {
			out["rows"] = r.Rows
		}
		out["affected"] = r.Affected
	} else {
		out["error"] = r.ErrorMessage
	}
	return out
}

// DBAction adaptador de nodos de base de datos. Abre y cierra la conexión en
// cada invocación: las credenciales vienen del flujo, no del contenedor. Para
// mongodb puede usarse un cliente compartido cuando el nodo no trae host
// propio.
type DBAction struct {
	defaultTimeout time.Duration
	sharedMongo    *mongo.Client
}

func NewDBAction(defaultTimeout time.Duration, sharedMongo *mongo.Client) *DBAction {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &DBAction{defaultTimeout: defaultTimeout, sharedMongo: sharedMongo}
}

// Execute despacha por familia de backend. Nunca retorna error: el fallo
// queda en el resultado y el flag store_error_response del nodo decide si se
// almacena y enruta por aristas en vez de abortar la ejecución.
func (a *DBAction) Execute(ctx context.Context, cfg engine.DatabaseConfig, vars map[string]any) DBResult {
	timeout := a.defaultTimeout
	if cfg.Timeout != nil && *cfg.Timeout > 0 {
		timeout = time.Duration(*cfg.Timeout) * time.Second
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch cfg.Backend {
	case "mongodb":
		return a.executeDocument(opCtx, cfg, vars)
	default:
		return a.executeRelational(opCtx, cfg, vars)
	}
}

// ============================================================================
// Relational (postgres / mysql)
// ============================================================================

func (a *DBAction) executeRelational(ctx context.Context, cfg engine.DatabaseConfig, vars map[string]any) DBResult {
	driver, dsn := relationalDSN(cfg)

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return DBResult{ErrorMessage: fmt.Sprintf("failed to open connection: %v", err)}
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return DBResult{ErrorMessage: fmt.Sprintf("failed to connect: %v", err)}
	}

	// Los parámetros se sustituyen con variables del flujo; la query queda
	// parametrizada para el driver.
	params := make([]any, len(cfg.Params))
	for i, p := range cfg.Params {
		params[i] = engine.RenderValue(p, vars)
	}

	query := cfg.Query
	if isReadQuery(query) {
		rows, err := db.QueryxContext(ctx, query, params...)
		if err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		defer rows.Close()

		var results []map[string]any
		for rows.Next() {
			row := make(map[string]any)
			if err := rows.MapScan(row); err != nil {
				return DBResult{ErrorMessage: err.Error()}
			}
			results = append(results, normalizeRow(row))
		}
		if err := rows.Err(); err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		return DBResult{Success: true, Rows: results, Affected: int64(len(results))}
	}

	res, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return DBResult{ErrorMessage: err.Error()}
	}
	affected, _ := res.RowsAffected()
	return DBResult{Success: true, Affected: affected}
}

func relationalDSN(cfg engine.DatabaseConfig) (driver, dsn string) {
	switch cfg.Backend {
	case "mysql":
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User, cfg.Password, cfg.Host, cfg.GetPort(), cfg.Database)
	default:
		return "postgres", fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.GetPort(), cfg.User, cfg.Password, cfg.Database)
	}
}

func isReadQuery(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH") || strings.HasPrefix(trimmed, "SHOW")
}

// normalizeRow convierte []byte a string para que el resultado sea
// serializable a JSONB sin sorpresas.
func normalizeRow(row map[string]any) map[string]any {
	for key, value := range row {
		if b, ok := value.([]byte); ok {
			row[key] = string(b)
		}
	}
	return row
}

// ============================================================================
// Document (mongodb)
// ============================================================================

func (a *DBAction) executeDocument(ctx context.Context, cfg engine.DatabaseConfig, vars map[string]any) DBResult {
	client := a.sharedMongo
	if cfg.Host != "" || client == nil {
		dedicated, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI(cfg)))
		if err != nil {
			return DBResult{ErrorMessage: fmt.Sprintf("failed to connect: %v", err)}
		}
		defer func() { _ = dedicated.Disconnect(context.Background()) }()
		client = dedicated
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	filter := toBSON(engine.RenderValue(cfg.Filter, vars))
	document := toBSON(engine.RenderValue(cfg.Document, vars))

	switch cfg.Operation {
	case "find":
		findOpts := options.Find()
		if len(cfg.Sort) > 0 {
			findOpts.SetSort(toBSON(cfg.Sort))
		}
		if cfg.Limit > 0 {
			findOpts.SetLimit(cfg.Limit)
		}
		cursor, err := coll.Find(ctx, filter, findOpts)
		if err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		var docs []bson.M
		if err := cursor.All(ctx, &docs); err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		rows := make([]map[string]any, len(docs))
		for i, doc := range docs {
			rows[i] = map[string]any(doc)
		}
		return DBResult{Success: true, Rows: rows, Affected: int64(len(rows))}

	case "insert":
		if _, err := coll.InsertOne(ctx, document); err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		return DBResult{Success: true, Affected: 1}

	case "update":
		res, err := coll.UpdateMany(ctx, filter, bson.M{"$set": document})
		if err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		return DBResult{Success: true, Affected: res.ModifiedCount}

	case "delete":
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return DBResult{ErrorMessage: err.Error()}
		}
		return DBResult{Success: true, Affected: res.DeletedCount}

	default:
		return DBResult{ErrorMessage: "unsupported operation: " + cfg.Operation}
	}
}

func mongoURI(cfg engine.DatabaseConfig) string {
	if cfg.User != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d",
			url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.GetPort())
	}
	return fmt.Sprintf("mongodb://%s:%d", cfg.Host, cfg.GetPort())
}

func toBSON(value any) bson.M {
	m, ok := value.(map[string]any)
	if !ok || m == nil {
		return bson.M{}
	}
	return bson.M(m)
}
