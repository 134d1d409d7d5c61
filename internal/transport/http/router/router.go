// file: internal/transport/http/router/router.go
package router

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/luiz158/isar/internal/adapter/engine/sqlite"
	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
	"github.com/luiz158/isar/internal/isarmiddleware"
	"github.com/luiz158/isar/internal/isarobserve"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Registry   *sqlite.Registry
	StorageDir string
}

// New 创建并配置一个全新的、基于 Gin 的 HTTP 路由器
func New(deps Dependencies) http.Handler {
	router := gin.Default()

	// --- 配置全局中间件 ---
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(isarmiddleware.RequestID())

	limiter := isarmiddleware.NewIPRateLimiter(rate.Limit(50), 100, 20, 5*time.Minute)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(isarobserve.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(limiter.Middleware())
	{
		instanceGroup := v1.Group("/instances")
		{
			instanceGroup.GET("", listInstancesHandler(deps.Registry))
			instanceGroup.POST("", openInstanceHandler(deps.Registry, deps.StorageDir))
			instanceGroup.GET("/:name/schema", schemaHandler(deps.Registry))
			instanceGroup.POST("/:name/query", queryHandler(deps.Registry))
			instanceGroup.POST("/:name/insert", insertHandler(deps.Registry))
		}
	}

	return router
}

// =============================================================================
//  Gin 处理器 (Handlers)
// =============================================================================

// listInstancesHandler 返回所有已打开的实例名称
func listInstancesHandler(registry *sqlite.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": registry.Names()})
	}
}

// openInstanceHandler 按请求体里的 schema 打开（或复用）一个命名实例
func openInstanceHandler(registry *sqlite.Registry, storageDir string) gin.HandlerFunc {
	type RequestBody struct {
		Name   string        `json:"name" binding:"required"`
		Schema domain.Schema `json:"schema" binding:"required"`
	}

	return func(c *gin.Context) {
		var reqBody RequestBody
		if err := c.ShouldBindJSON(&reqBody); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
			return
		}

		inst, err := registry.OpenOrGet(reqBody.Name, storageDir, reqBody.Schema)
		if err != nil {
			if errors.Is(err, port.ErrSchemaMismatch) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "打开实例失败: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"name":        inst.Name(),
			"path":        inst.Path(),
			"fingerprint": fmt.Sprintf("%016x", inst.SchemaFingerprint()),
		}})
	}
}

// schemaHandler 返回指定实例的集合布局（过滤无名属性后的运行时视图）
func schemaHandler(registry *sqlite.Registry) gin.HandlerFunc {
	type propertyView struct {
		Name string          `json:"name"`
		Type domain.DataType `json:"type"`
	}
	type collectionView struct {
		Name       string         `json:"name"`
		ID         string         `json:"id"`
		Properties []propertyView `json:"properties"`
	}

	return func(c *gin.Context) {
		inst, found := lookupInstance(c, registry)
		if !found {
			return
		}

		collections := inst.Collections()
		views := make([]collectionView, 0, len(collections))
		for _, col := range collections {
			id, _ := inst.CollectionIDByName(col.Name)
			view := collectionView{
				Name:       col.Name,
				ID:         fmt.Sprintf("%016x", id),
				Properties: make([]propertyView, 0, len(col.Properties)),
			}
			for _, p := range col.Properties {
				view.Properties = append(view.Properties, propertyView{Name: p.Name, Type: p.Type})
			}
			views = append(views, view)
		}
		c.JSON(http.StatusOK, gin.H{"data": views})
	}
}

// filterClause 是查询请求中的一个条件。
// op 取值: eq / isNull / notNull
type filterClause struct {
	Property string `json:"property" binding:"required"`
	Op       string `json:"op" binding:"required"`
	Value    any    `json:"value"`
}

type sortClause struct {
	Property  string `json:"property" binding:"required"`
	Ascending bool   `json:"ascending"`
}

// queryHandler 在一个只读事务内执行查询并物化全部结果行
func queryHandler(registry *sqlite.Registry) gin.HandlerFunc {
	type RequestBody struct {
		Collection string         `json:"collection" binding:"required"`
		Filters    []filterClause `json:"filters"`
		Sort       []sortClause   `json:"sort"`
	}

	return func(c *gin.Context) {
		inst, found := lookupInstance(c, registry)
		if !found {
			return
		}

		var reqBody RequestBody
		if err := c.ShouldBindJSON(&reqBody); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
			return
		}

		col, colID, ok := lookupCollection(inst, reqBody.Collection)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "集合 '" + reqBody.Collection + "' 未在该实例中声明"})
			return
		}

		builder, err := inst.Query(colID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		for _, f := range reqBody.Filters {
			idx := col.PropertyIndex(f.Property)
			if idx < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "未知属性: " + f.Property})
				return
			}
			switch f.Op {
			case "eq":
				builder.WhereEq(idx, f.Value)
			case "isNull":
				builder.WhereIsNull(idx)
			case "notNull":
				builder.WhereNotNull(idx)
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的条件类型: " + f.Op})
				return
			}
		}
		for _, s := range reqBody.Sort {
			idx := col.PropertyIndex(s.Property)
			if idx < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "未知属性: " + s.Property})
				return
			}
			builder.SortBy(idx, s.Ascending)
		}
		query := builder.Build()

		txn, err := inst.BeginTxn(false)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "开启事务失败: " + err.Error()})
			return
		}
		defer inst.AbortTxn(txn)

		cursor, err := query.Cursor(txn)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "执行查询失败: " + err.Error()})
			return
		}
		defer cursor.Close()

		rows := make([]map[string]any, 0)
		for cursor.Next() {
			rows = append(rows, readDocument(cursor.Reader(), col))
		}
		if err := cursor.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "读取结果失败: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
	}
}

// insertHandler 在一个写事务内批量插入文档，全部成功才提交
func insertHandler(registry *sqlite.Registry) gin.HandlerFunc {
	type documentPayload struct {
		ID     int64          `json:"id" binding:"required"`
		Values map[string]any `json:"values"`
	}
	type RequestBody struct {
		Collection string            `json:"collection" binding:"required"`
		Documents  []documentPayload `json:"documents" binding:"required,min=1"`
	}

	return func(c *gin.Context) {
		inst, found := lookupInstance(c, registry)
		if !found {
			return
		}

		var reqBody RequestBody
		if err := c.ShouldBindJSON(&reqBody); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
			return
		}

		col, colID, ok := lookupCollection(inst, reqBody.Collection)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "集合 '" + reqBody.Collection + "' 未在该实例中声明"})
			return
		}

		txn, err := inst.BeginTxn(true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "开启事务失败: " + err.Error()})
			return
		}

		insert, err := inst.Insert(txn, colID, len(reqBody.Documents))
		if err != nil {
			inst.AbortTxn(txn)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		for _, doc := range reqBody.Documents {
			insert.WriteID(doc.ID)
			if err := writeDocument(insert, col, doc.Values); err != nil {
				inst.AbortTxn(txn)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := insert.Save(); err != nil {
				inst.AbortTxn(txn)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "写入文档失败: " + err.Error()})
				return
			}
		}

		if err := inst.CommitTxn(txn); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "提交事务失败: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"inserted": len(reqBody.Documents)}})
	}
}

// =============================================================================
//  辅助函数 (Helpers)
// =============================================================================

// lookupInstance 解析路径参数并查找已打开的实例，未找到时直接写出 404
func lookupInstance(c *gin.Context, registry *sqlite.Registry) (*sqlite.Instance, bool) {
	name := c.Param("name")
	inst, exists := registry.Get(name)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "实例 '" + name + "' 未打开"})
		return nil, false
	}
	return inst, true
}

func lookupCollection(inst *sqlite.Instance, name string) (*domain.Collection, uint64, bool) {
	id, ok := inst.CollectionIDByName(name)
	if !ok {
		return nil, 0, false
	}
	for _, col := range inst.Collections() {
		if col.Name == name {
			return col, id, true
		}
	}
	return nil, 0, false
}

// readDocument 按集合的属性声明顺序把当前行物化为 JSON 友好的 map
func readDocument(r port.Reader, col *domain.Collection) map[string]any {
	doc := make(map[string]any, len(col.Properties)+1)
	doc["id"] = r.ReadID()
	for i, p := range col.Properties {
		if r.IsNull(i) {
			doc[p.Name] = nil
			continue
		}
		switch p.Type {
		case domain.TypeBool:
			doc[p.Name] = r.ReadBool(i)
		case domain.TypeByte, domain.TypeInt, domain.TypeLong:
			doc[p.Name] = r.ReadLong(i)
		case domain.TypeFloat, domain.TypeDouble:
			doc[p.Name] = r.ReadDouble(i)
		default:
			doc[p.Name] = r.ReadString(i)
		}
	}
	return doc
}

// writeDocument 按属性声明顺序写出 values 中的字段，缺失的字段落为 NULL。
// JSON 解码产生的数值统一是 float64，整型属性在这里做收窄。
func writeDocument(w port.Writer, col *domain.Collection, values map[string]any) error {
	for _, p := range col.Properties {
		v, present := values[p.Name]
		if !present || v == nil {
			w.WriteNull()
			continue
		}
		switch p.Type {
		case domain.TypeBool:
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("属性 '%s' 需要布尔值", p.Name)
			}
			w.WriteBool(b)
		case domain.TypeByte, domain.TypeInt, domain.TypeLong:
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("属性 '%s' 需要数值", p.Name)
			}
			w.WriteLong(int64(f))
		case domain.TypeFloat, domain.TypeDouble:
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("属性 '%s' 需要数值", p.Name)
			}
			w.WriteDouble(f)
		case domain.TypeString, domain.TypeJson:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("属性 '%s' 需要字符串", p.Name)
			}
			w.WriteString(s)
		default:
			return fmt.Errorf("属性 '%s' 的类型 '%s' 不支持通过 HTTP 写入", p.Name, p.Type)
		}
	}
	return nil
}
