package local

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/slok/infraware/internal/iacspec"
	"github.com/slok/infraware/internal/model"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"upper":  strings.ToUpper,
	"join":   strings.Join,
	"dash":   func(s string) string { return strings.ReplaceAll(s, "_", "-") },
	"tfType": terraformType,
	"tfRef":  func(provider, name string) string { return name },
	"hcl":    hclValue,
}).ParseFS(templateFiles, "templates/*.tmpl"))

type renderData struct {
	Doc       iacspec.Document
	Resources []iacspec.Resource
	Edges     [][2]string
}

func renderFiles(spec []byte, names ...string) ([]model.File, error) {
	doc, err := iacspec.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("could not render invalid spec: %w: %w", model.ErrEngineFailure, err)
	}

	ordered, err := doc.Ordered()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrEngineFailure, err)
	}

	data := renderData{Doc: *doc, Resources: ordered, Edges: doc.Edges()}
	refs := resourceRefs(doc.Provider, ordered)

	files := make([]model.File, 0, len(names))
	for _, name := range names {
		t, err := templates.Clone()
		if err != nil {
			return nil, fmt.Errorf("could not clone templates: %w: %w", model.ErrEngineFailure, err)
		}
		t.Funcs(template.FuncMap{"tfRef": func(_, name string) string { return refs[name] }})

		var b bytes.Buffer
		if err := t.ExecuteTemplate(&b, name+".tmpl", data); err != nil {
			return nil, fmt.Errorf("could not render %s: %w: %w", name, model.ErrEngineFailure, err)
		}
		files = append(files, model.File{Name: name, Content: b.Bytes()})
	}

	return files, nil
}

// resourceRefs maps the resource names to their Terraform references.
func resourceRefs(provider string, resources []iacspec.Resource) map[string]string {
	refs := make(map[string]string, len(resources))
	for _, r := range resources {
		refs[r.Name] = terraformType(provider, r.Type) + "." + r.Name
	}
	return refs
}

var terraformTypes = map[string]map[string]string{
	"gcp": {
		"network":            "google_compute_network",
		"subnet":             "google_compute_subnetwork",
		"firewall":           "google_compute_firewall",
		"compute":            "google_compute_instance",
		"load_balancer":      "google_compute_global_forwarding_rule",
		"database":           "google_sql_database_instance",
		"bucket":             "google_storage_bucket",
		"cache":              "google_redis_instance",
		"queue":              "google_pubsub_topic",
		"dns":                "google_dns_managed_zone",
		"kubernetes_cluster": "google_container_cluster",
		"function":           "google_cloudfunctions2_function",
	},
	"aws": {
		"network":            "aws_vpc",
		"subnet":             "aws_subnet",
		"firewall":           "aws_security_group",
		"compute":            "aws_instance",
		"load_balancer":      "aws_lb",
		"database":           "aws_db_instance",
		"bucket":             "aws_s3_bucket",
		"cache":              "aws_elasticache_cluster",
		"queue":              "aws_sqs_queue",
		"dns":                "aws_route53_zone",
		"kubernetes_cluster": "aws_eks_cluster",
		"function":           "aws_lambda_function",
	},
	"azure": {
		"network":            "azurerm_virtual_network",
		"subnet":             "azurerm_subnet",
		"firewall":           "azurerm_network_security_group",
		"compute":            "azurerm_linux_virtual_machine",
		"load_balancer":      "azurerm_lb",
		"database":           "azurerm_postgresql_flexible_server",
		"bucket":             "azurerm_storage_account",
		"cache":              "azurerm_redis_cache",
		"queue":              "azurerm_servicebus_queue",
		"dns":                "azurerm_dns_zone",
		"kubernetes_cluster": "azurerm_kubernetes_cluster",
		"function":           "azurerm_linux_function_app",
	},
}

func terraformType(provider, resourceType string) string {
	if t, ok := terraformTypes[provider][resourceType]; ok {
		return t
	}
	return provider + "_" + resourceType
}

// hclValue renders a spec property value as an HCL expression.
func hclValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, hclValue(item))
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			items = append(items, k+" = "+hclValue(v[k]))
		}
		return "{ " + strings.Join(items, ", ") + " }"
	default:
		return strconv.Quote(fmt.Sprint(v))
	}
}
