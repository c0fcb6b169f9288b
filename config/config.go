/*
Copyright 2025 Nordvend Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	// DefaultBigFileThreshold is the payload size above which accepted
	// bundles are dispatched on the big-file lane.
	DefaultBigFileThreshold = 50 * 1024

	// DefaultRetentionDays bounds both duplicate suppression and cleanup
	// when an RVM owner has no explicit window configured.
	DefaultRetentionDays = 30
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SecretKey string `json:"secret_key" envconfig:"PANT_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"PANT_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PANT_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"PANT_REDIS_DNS"`
}

// PipelineConfig carries the filesystem layout of the import pipeline. All
// stage directories live under Root; per-company inboxes live under the
// company's IP-address subdirectory.
type PipelineConfig struct {
	Root                                 string `json:"root" envconfig:"PANT_PIPELINE_ROOT"`
	BigFileThreshold                     int64  `json:"big_file_threshold" envconfig:"PANT_PIPELINE_BIG_FILE_THRESHOLD"`
	RetentionDays                        int    `json:"retention_days" envconfig:"PANT_PIPELINE_RETENTION_DAYS"`
	MoveFailedToCompanyRejectedDirectory bool   `json:"move_failed_to_company_rejected_directory" envconfig:"PANT_PIPELINE_COMPANY_REJECTED_COPY"`
}

type QueueConfig struct {
	TransactionQueue string `json:"transaction_queue" envconfig:"PANT_QUEUE_TRANSACTION"`
	BigFileQueue     string `json:"big_file_queue" envconfig:"PANT_QUEUE_BIG_FILE"`
	JobsQueue        string `json:"jobs_queue" envconfig:"PANT_QUEUE_JOBS"`
}

type SchedulerConfig struct {
	StagingImportSpec   string `json:"staging_import_spec" envconfig:"PANT_SCHEDULE_STAGING_IMPORT"`
	FailedReimportSpec  string `json:"failed_reimport_spec" envconfig:"PANT_SCHEDULE_FAILED_REIMPORT"`
	BackupReimportSpec  string `json:"backup_reimport_spec" envconfig:"PANT_SCHEDULE_BACKUP_REIMPORT"`
	ExpiredCleanupSpec  string `json:"expired_cleanup_spec" envconfig:"PANT_SCHEDULE_EXPIRED_CLEANUP"`
	RejectedCleanupSpec string `json:"rejected_cleanup_spec" envconfig:"PANT_SCHEDULE_REJECTED_CLEANUP"`
}

type SftpConfig struct {
	Host           string `json:"host" envconfig:"PANT_SFTP_HOST"`
	Port           int    `json:"port" envconfig:"PANT_SFTP_PORT"`
	User           string `json:"user" envconfig:"PANT_SFTP_USER"`
	PrivateKeyPath string `json:"private_key_path" envconfig:"PANT_SFTP_PRIVATE_KEY_PATH"`
}

type MailConfig struct {
	Host       string   `json:"host" envconfig:"PANT_MAIL_HOST"`
	Port       int      `json:"port" envconfig:"PANT_MAIL_PORT"`
	User       string   `json:"user" envconfig:"PANT_MAIL_USER"`
	Password   string   `json:"password" envconfig:"PANT_MAIL_PASSWORD"`
	From       string   `json:"from" envconfig:"PANT_MAIL_FROM"`
	Recipients []string `json:"recipients" envconfig:"PANT_MAIL_RECIPIENTS"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
	Mail  MailConfig   `json:"mail"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"PANT_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Pipeline     PipelineConfig   `json:"pipeline"`
	Queue        QueueConfig      `json:"queue"`
	Scheduler    SchedulerConfig  `json:"scheduler"`
	Sftp         SftpConfig       `json:"sftp"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("pant", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called pant.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Pant Import Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Pipeline.Root == "" {
		log.Println("Error: Pipeline root is empty. It's a required field.")
		return errors.New("pipeline root directory is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Pipeline.Root = strings.TrimSpace(cnf.Pipeline.Root)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Pipeline.BigFileThreshold <= 0 {
		cnf.Pipeline.BigFileThreshold = DefaultBigFileThreshold
	}
	if cnf.Pipeline.RetentionDays <= 0 {
		cnf.Pipeline.RetentionDays = DefaultRetentionDays
	}

	if cnf.Queue.TransactionQueue == "" {
		cnf.Queue.TransactionQueue = "in_queue"
	}
	if cnf.Queue.BigFileQueue == "" {
		cnf.Queue.BigFileQueue = "in_queue_big_files"
	}
	if cnf.Queue.JobsQueue == "" {
		cnf.Queue.JobsQueue = "jobs"
	}

	if cnf.Scheduler.StagingImportSpec == "" {
		cnf.Scheduler.StagingImportSpec = "@every 1m"
	}
	if cnf.Scheduler.FailedReimportSpec == "" {
		cnf.Scheduler.FailedReimportSpec = "@every 15m"
	}
	if cnf.Scheduler.BackupReimportSpec == "" {
		cnf.Scheduler.BackupReimportSpec = "@every 30m"
	}
	if cnf.Scheduler.ExpiredCleanupSpec == "" {
		cnf.Scheduler.ExpiredCleanupSpec = "@daily"
	}
	if cnf.Scheduler.RejectedCleanupSpec == "" {
		cnf.Scheduler.RejectedCleanupSpec = "@hourly"
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
