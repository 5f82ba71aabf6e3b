package database

import (
	"fmt"
	"log"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector 根据配置选择数据库驱动
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
			cfg.ParseTime,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "toeic.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(cfg *config.DatabaseConfig, mode string) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if mode == "debug" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate 建表并写入默认数据
func Migrate(db *gorm.DB) error {
	if err := AutoMigrate(db); err != nil {
		return err
	}

	log.Println("Database migration completed")
	return seed(db)
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Member{},
		&model.Department{},
		&model.Employee{},
		&model.Question{},
		&model.Answer{},
		&model.Test{},
		&model.TestContent{},
		&model.TestResult{},
		&model.UserAnswer{},
		&model.UserError{},
		&model.AIConversation{},
		&model.Conversation{},
		&model.ConversationMember{},
		&model.Message{},
		&model.IRTRun{},
	)
}

func seed(db *gorm.DB) error {
	var deptCount int64
	db.Model(&model.Department{}).Count(&deptCount)
	if deptCount == 0 {
		defaultDepartments := []model.Department{
			{Code: "ADMIN", Name: "Administration", Description: "系统管理"},
			{Code: "CONTENT", Name: "Content", Description: "题库维护"},
			{Code: "SUPPORT", Name: "Learner Support", Description: "学员服务"},
		}
		for _, d := range defaultDepartments {
			if err := db.Create(&d).Error; err != nil {
				return err
			}
		}
	}

	// 默认管理员，首次登录后应修改密码
	var empCount int64
	db.Model(&model.Employee{}).Count(&empCount)
	if empCount == 0 {
		hashed, err := bcrypt.GenerateFromPassword([]byte("admin123456"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		var dept model.Department
		db.Where("code = ?", "ADMIN").First(&dept)
		admin := &model.Employee{
			FullName: "Administrator",
			Email:    "admin@toeic.local",
			Password: string(hashed),
			Role:     model.RoleAdmin,
		}
		if dept.ID != 0 {
			admin.DepartmentID = &dept.ID
		}
		if err := db.Create(admin).Error; err != nil {
			return err
		}
	}
	return nil
}
