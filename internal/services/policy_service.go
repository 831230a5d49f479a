package services

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// PolicyService manages the escalation rule set
type PolicyService struct {
	db *gorm.DB
}

// NewPolicyService creates a new policy service
func NewPolicyService(db *gorm.DB) *PolicyService {
	return &PolicyService{db: db}
}

// defaultRules is the built-in escalation ladder, seeded on first run.
// Level 0 is the initial notification; later levels fan out to wider
// channels with growing delays. Lower severities escalate less.
var defaultRules = []database.EscalationRule{
	{Severity: 5, Level: 0, DelayMinutes: 0, NotifyMethod: "push", NotifyTarget: "", Active: true},
	{Severity: 5, Level: 1, DelayMinutes: 15, NotifyMethod: "email", NotifyTarget: notifyOnCall, Active: true},
	{Severity: 5, Level: 2, DelayMinutes: 30, NotifyMethod: "sms", NotifyTarget: notifyOnCall, Active: true},
	{Severity: 4, Level: 0, DelayMinutes: 0, NotifyMethod: "push", NotifyTarget: "", Active: true},
	{Severity: 4, Level: 1, DelayMinutes: 30, NotifyMethod: "email", NotifyTarget: notifyOnCall, Active: true},
	{Severity: 4, Level: 2, DelayMinutes: 60, NotifyMethod: "slack", NotifyTarget: "", Active: true},
	{Severity: 3, Level: 0, DelayMinutes: 0, NotifyMethod: "push", NotifyTarget: "", Active: true},
	{Severity: 3, Level: 1, DelayMinutes: 60, NotifyMethod: "email", NotifyTarget: notifyOnCall, Active: true},
	{Severity: 2, Level: 0, DelayMinutes: 0, NotifyMethod: "push", NotifyTarget: "", Active: true},
	{Severity: 1, Level: 0, DelayMinutes: 0, NotifyMethod: "push", NotifyTarget: "", Active: true},
}

const notifyOnCall = "on-call"

// SeedDefaults creates the default escalation rules if the table is empty
func (s *PolicyService) SeedDefaults() error {
	var count int64
	if err := s.db.Model(&database.EscalationRule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, r := range defaultRules {
		rule := r
		if err := s.db.Create(&rule).Error; err != nil {
			return fmt.Errorf("failed to create escalation rule (severity %d, level %d): %w", r.Severity, r.Level, err)
		}
	}
	log.Printf("Seeded %d default escalation rules", len(defaultRules))
	return nil
}

// policyFile is the YAML shape accepted by LoadFromFile
type policyFile struct {
	Rules []struct {
		Severity     int    `yaml:"severity"`
		Level        int    `yaml:"level"`
		DelayMinutes int    `yaml:"delay_minutes"`
		NotifyMethod string `yaml:"notify_method"`
		NotifyTarget string `yaml:"notify_target"`
	} `yaml:"rules"`
}

// LoadFromFile replaces the entire rule set with the rules from a YAML
// policy file. Used at startup when ESCALATION_POLICY_FILE is set.
func (s *PolicyService) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(pf.Rules) == 0 {
		return fmt.Errorf("policy file %s contains no rules", path)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&database.EscalationRule{}).Error; err != nil {
			return err
		}
		for _, r := range pf.Rules {
			if r.Severity < 1 || r.Severity > 5 {
				return fmt.Errorf("invalid severity %d in policy file", r.Severity)
			}
			rule := database.EscalationRule{
				Severity:     r.Severity,
				Level:        r.Level,
				DelayMinutes: r.DelayMinutes,
				NotifyMethod: r.NotifyMethod,
				NotifyTarget: r.NotifyTarget,
				Active:       true,
			}
			if err := tx.Create(&rule).Error; err != nil {
				return err
			}
		}
		log.Printf("Loaded %d escalation rules from %s", len(pf.Rules), path)
		return nil
	})
}

// ListRules returns all rules ordered by severity then level
func (s *PolicyService) ListRules() ([]database.EscalationRule, error) {
	var rules []database.EscalationRule
	err := s.db.Order("severity DESC, level ASC").Find(&rules).Error
	return rules, err
}

// GetRule returns the active rule for (severity, level), or nil when no
// such rule exists. Absence of a rule terminates escalation.
func (s *PolicyService) GetRule(severity, level int) (*database.EscalationRule, error) {
	var rule database.EscalationRule
	err := s.db.Where("severity = ? AND level = ? AND active = ?", severity, level, true).First(&rule).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule inserts a new escalation rule
func (s *PolicyService) CreateRule(rule *database.EscalationRule) error {
	return s.db.Create(rule).Error
}

// UpdateRule updates an existing rule by ID
func (s *PolicyService) UpdateRule(id uint, updates map[string]interface{}) error {
	result := s.db.Model(&database.EscalationRule{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteRule deletes a rule by ID
func (s *PolicyService) DeleteRule(id uint) error {
	result := s.db.Delete(&database.EscalationRule{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NextEscalationFor computes when an alert at currentLevel should escalate
// next. It looks up the rule for (severity, currentLevel+1): a freshly
// created alert at level 0 is scheduled by level 1's delay, and so on.
// Returns nil when no further rule exists.
func (s *PolicyService) NextEscalationFor(severity, currentLevel int, now time.Time) (*time.Time, error) {
	rule, err := s.GetRule(severity, currentLevel+1)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, nil
	}
	next := now.Add(time.Duration(rule.DelayMinutes) * time.Minute)
	return &next, nil
}
