// Package config holds the deployment settings: which boards play which
// role and which columns carry which value. It is loaded once and passed
// around by value or pointer; nothing below cmd/ reads the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	ModeArchive = "archive"
	ModeDelete  = "delete"
	ModeKeep    = "keep"

	BarcodeFromName = "name"
)

var ErrMissingToken = errors.New("monday.token is not set")

type Monday struct {
	Token      string        `mapstructure:"token" validate:"required"`
	APIURL     string        `mapstructure:"api_url" validate:"required,url"`
	APIVersion string        `mapstructure:"api_version"`
	RetryMax   int           `mapstructure:"retry_max" validate:"gte=0,lte=10"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Entry struct {
	BoardID           int64  `mapstructure:"board_id"`
	GroupID           string `mapstructure:"group_id"`
	QtyColumn         string `mapstructure:"qty_column" validate:"required_with=BoardID"`
	BarcodeSource     string `mapstructure:"barcode_source"`
	QCColumn          string `mapstructure:"qc_column"`
	CountColumn       string `mapstructure:"count_column"`
	ProductLinkColumn string `mapstructure:"product_link_column"`
	AlertPeopleColumn string `mapstructure:"alert_people_column"`
	NotesColumn       string `mapstructure:"notes_column"`
	LastPriceColumn   string `mapstructure:"last_price_column"`
	DisposeMode       string `mapstructure:"dispose_mode" validate:"oneof=archive delete"`
	CompleteMode      string `mapstructure:"complete_mode" validate:"oneof=archive delete keep"`
}

type Exit struct {
	BoardID           int64  `mapstructure:"board_id"`
	GroupID           string `mapstructure:"group_id"`
	QtyColumn         string `mapstructure:"qty_column" validate:"required_with=BoardID"`
	BarcodeSource     string `mapstructure:"barcode_source"`
	ProductLinkColumn string `mapstructure:"product_link_column"`
	TargetColumn      string `mapstructure:"target_column"`
	UnitColumn        string `mapstructure:"unit_column"`
	DisposeMode       string `mapstructure:"dispose_mode" validate:"oneof=archive delete"`
	CompleteMode      string `mapstructure:"complete_mode" validate:"oneof=archive delete keep"`
}

type Catalog struct {
	BoardID       int64  `mapstructure:"board_id" validate:"required"`
	BarcodeColumn string `mapstructure:"barcode_column" validate:"required"`
	StockColumn   string `mapstructure:"stock_column" validate:"required"`
}

type Report struct {
	BoardID            int64  `mapstructure:"board_id"`
	CreateGroup        bool   `mapstructure:"create_group"`
	ProductColumn      string `mapstructure:"product_column"`
	ProductSourceTitle string `mapstructure:"product_source_title"`
	DateColumn         string `mapstructure:"date_column"`
	PersonColumn       string `mapstructure:"person_column"`
	QCColumn           string `mapstructure:"qc_column"`
	CountColumn        string `mapstructure:"count_column"`
	NotesColumn        string `mapstructure:"notes_column"`
	LastPriceColumn    string `mapstructure:"last_price_column"`
}

type ExitReport struct {
	BoardID       int64  `mapstructure:"board_id"`
	CreateGroup   bool   `mapstructure:"create_group"`
	ProductColumn string `mapstructure:"product_column"`
	TargetColumn  string `mapstructure:"target_column"`
	QtyColumn     string `mapstructure:"qty_column"`
	UnitColumn    string `mapstructure:"unit_column"`
	DateColumn    string `mapstructure:"date_column"`
	PersonColumn  string `mapstructure:"person_column"`
}

type QC struct {
	AlertUserIDs  []int64 `mapstructure:"alert_user_ids"`
	UpdateMessage string  `mapstructure:"update_message"`
	NotifyMessage string  `mapstructure:"notify_message"`
}

type Lock struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
	Dir       string        `mapstructure:"dir"`
}

type Server struct {
	Listen   string `mapstructure:"listen"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password" validate:"required_with=Username"`
}

type Storage struct {
	DBPath string `mapstructure:"dbpath"`
}

type Config struct {
	Monday     Monday     `mapstructure:"monday"`
	Entry      Entry      `mapstructure:"entry"`
	Exit       Exit       `mapstructure:"exit"`
	Catalog    Catalog    `mapstructure:"catalog"`
	Report     Report     `mapstructure:"report"`
	ExitReport ExitReport `mapstructure:"exit_report"`
	QC         QC         `mapstructure:"qc"`
	Lock       Lock       `mapstructure:"lock"`
	Server     Server     `mapstructure:"server"`
	Storage    Storage    `mapstructure:"storage"`
}

// legacyEnv maps keys to the environment names the first deployment used in
// its .env file.
var legacyEnv = map[string][]string{
	"monday.token":               {"MONDAY_API_TOKEN"},
	"entry.qty_column":           {"ENTRY_QTY_COLUMN_ID"},
	"entry.qc_column":            {"ENTRY_QC_CHECKBOX_COLUMN_ID"},
	"entry.count_column":         {"ENTRY_COUNT_DONE_CHECKBOX_COLUMN_ID"},
	"entry.product_link_column":  {"ENTRY_PRODUCT_LINK_COLUMN_ID"},
	"entry.alert_people_column":  {"ENTRY_ALERT_PEOPLE_COLUMN_ID"},
	"entry.notes_column":         {"ENTRY_NOTES_TEXT_ID"},
	"entry.last_price_column":    {"ENTRY_LAST_PRICE_COLUMN_ID"},
	"entry.dispose_mode":         {"DELETE_MODE"},
	"entry.complete_mode":        {"COMPLETE_DELETE_MODE"},
	"exit.qty_column":            {"EXIT_QTY_COLUMN_ID"},
	"exit.product_link_column":   {"EXIT_PRODUCT_REL_COLUMN_ID"},
	"exit.target_column":         {"EXIT_TARGET_REL_COLUMN_ID"},
	"exit.unit_column":           {"EXIT_UNIT_DROPDOWN_ID"},
	"exit.dispose_mode":          {"EXIT_COMPLETE_DELETE_MODE"},
	"exit.complete_mode":         {"EXIT_COMPLETE_DELETE_MODE"},
	"catalog.barcode_column":     {"CATALOG_BARCODE_COLUMN_ID"},
	"catalog.stock_column":       {"CATALOG_STOCK_COLUMN_ID"},
	"report.create_group":        {"CREATE_REPORT_GROUP"},
	"report.product_column":      {"REPORT_PRODUCT_LINK_COLUMN_ID"},
	"report.date_column":         {"REPORT_DATE_COLUMN_ID"},
	"report.person_column":       {"REPORT_PERSON_COLUMN_ID"},
	"report.qc_column":           {"REPORT_QC_CHECKBOX_COLUMN_ID"},
	"report.count_column":        {"REPORT_COUNT_DONE_CHECKBOX_COLUMN_ID"},
	"report.notes_column":        {"REPORT_NOTES_TEXT_ID"},
	"report.last_price_column":   {"REPORT_LAST_PRICE_COLUMN_ID"},
	"exit_report.create_group":   {"CREATE_EXIT_REPORT_GROUP"},
	"exit_report.product_column": {"EXIT_REPORT_PRODUCT_REL_COLUMN_ID"},
	"exit_report.target_column":  {"EXIT_REPORT_TARGET_REL_COLUMN_ID"},
	"exit_report.qty_column":     {"EXIT_REPORT_QTY_COLUMN_ID"},
	"exit_report.unit_column":    {"EXIT_REPORT_UNIT_DROPDOWN_ID"},
	"exit_report.date_column":    {"EXIT_REPORT_DATE_COLUMN_ID"},
	"exit_report.person_column":  {"EXIT_REPORT_PEOPLE_COLUMN_ID"},
	"qc.alert_user_ids":          {"QC_ALERT_USER_IDS"},
}

// SetDefaults registers every key with its default so that environment
// overrides are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("monday.token", "")
	v.SetDefault("monday.api_url", "https://api.monday.com/v2")
	v.SetDefault("monday.api_version", "2023-10")
	v.SetDefault("monday.retry_max", 3)
	v.SetDefault("monday.timeout", 30*time.Second)

	v.SetDefault("entry.board_id", 0)
	v.SetDefault("entry.group_id", "topics")
	v.SetDefault("entry.qty_column", "")
	v.SetDefault("entry.barcode_source", BarcodeFromName)
	v.SetDefault("entry.qc_column", "")
	v.SetDefault("entry.count_column", "")
	v.SetDefault("entry.product_link_column", "")
	v.SetDefault("entry.alert_people_column", "")
	v.SetDefault("entry.notes_column", "")
	v.SetDefault("entry.last_price_column", "")
	v.SetDefault("entry.dispose_mode", ModeArchive)
	v.SetDefault("entry.complete_mode", ModeDelete)

	v.SetDefault("exit.board_id", 0)
	v.SetDefault("exit.group_id", "topics")
	v.SetDefault("exit.qty_column", "")
	v.SetDefault("exit.barcode_source", BarcodeFromName)
	v.SetDefault("exit.product_link_column", "")
	v.SetDefault("exit.target_column", "")
	v.SetDefault("exit.unit_column", "")
	v.SetDefault("exit.dispose_mode", ModeDelete)
	v.SetDefault("exit.complete_mode", ModeDelete)

	v.SetDefault("catalog.board_id", 0)
	v.SetDefault("catalog.barcode_column", "")
	v.SetDefault("catalog.stock_column", "")

	v.SetDefault("report.board_id", 0)
	v.SetDefault("report.create_group", true)
	v.SetDefault("report.product_column", "")
	v.SetDefault("report.product_source_title", "Ürün")
	v.SetDefault("report.date_column", "")
	v.SetDefault("report.person_column", "")
	v.SetDefault("report.qc_column", "")
	v.SetDefault("report.count_column", "")
	v.SetDefault("report.notes_column", "")
	v.SetDefault("report.last_price_column", "")

	v.SetDefault("exit_report.board_id", 0)
	v.SetDefault("exit_report.create_group", true)
	v.SetDefault("exit_report.product_column", "")
	v.SetDefault("exit_report.target_column", "")
	v.SetDefault("exit_report.qty_column", "")
	v.SetDefault("exit_report.unit_column", "")
	v.SetDefault("exit_report.date_column", "")
	v.SetDefault("exit_report.person_column", "")

	v.SetDefault("qc.alert_user_ids", []int64{})
	v.SetDefault("qc.update_message", "")
	v.SetDefault("qc.notify_message", "")

	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.dir", "")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.username", "")
	v.SetDefault("server.password", "")

	v.SetDefault("storage.dbpath", "")
}

// BindEnv maps every key to an environment variable (entry.board_id is
// ENTRY_BOARD_ID) and also accepts the legacy names.
func BindEnv(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Monday.Token = strings.TrimSpace(c.Monday.Token)
	c.Entry.DisposeMode = disposeMode(c.Entry.DisposeMode)
	c.Entry.CompleteMode = completeMode(c.Entry.CompleteMode)
	c.Exit.DisposeMode = disposeMode(c.Exit.DisposeMode)
	c.Exit.CompleteMode = completeMode(c.Exit.CompleteMode)
	if c.Entry.BarcodeSource == "" {
		c.Entry.BarcodeSource = BarcodeFromName
	}
	if c.Exit.BarcodeSource == "" {
		c.Exit.BarcodeSource = BarcodeFromName
	}
}

// disposeMode deletes processed rows only when asked to; anything else
// archives them.
func disposeMode(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), ModeDelete) {
		return ModeDelete
	}
	return ModeArchive
}

// completeMode keeps the completion row for any value other than delete or
// archive. Empty means delete.
func completeMode(s string) string {
	switch m := strings.ToLower(strings.TrimSpace(s)); m {
	case "", ModeDelete:
		return ModeDelete
	case ModeArchive:
		return ModeArchive
	}
	return ModeKeep
}

var int64SliceType = reflect.TypeOf([]int64(nil))

// idListHook decodes a comma separated id list such as "7, 8" into []int64,
// dropping entries that are not numbers.
var idListHook mapstructure.DecodeHookFuncType = func(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != int64SliceType {
		return data, nil
	}
	return parseIDList(data.(string)), nil
}

var decodeHook = mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	idListHook,
	mapstructure.StringToSliceHookFunc(","),
)

// parseIDList splits s on commas and keeps the entries that parse as ids.
func parseIDList(s string) []int64 {
	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

var validate = validator.New()

// Validate checks required settings and enumerations.
func (c *Config) Validate() error {
	if c.Monday.Token == "" {
		return ErrMissingToken
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// LoadMonday reads only the API settings, for setup commands that run
// before the boards are configured.
func LoadMonday(v *viper.Viper) (Monday, error) {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return Monday{}, err
	}
	m := Monday{
		Token:      strings.TrimSpace(v.GetString("monday.token")),
		APIURL:     v.GetString("monday.api_url"),
		APIVersion: v.GetString("monday.api_version"),
		RetryMax:   v.GetInt("monday.retry_max"),
		Timeout:    v.GetDuration("monday.timeout"),
	}
	if m.Token == "" {
		return Monday{}, ErrMissingToken
	}
	if err := validate.Struct(m); err != nil {
		return Monday{}, fmt.Errorf("invalid monday config: %w", err)
	}
	return m, nil
}
