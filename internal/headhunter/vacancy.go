package headhunter

import (
	"context"
	"fmt"
	"strings"
)

type Vacancies struct {
	Items []*Vacancy
}

type Vacancy struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
		URL  string `json:"url,omitempty"`
	} `json:"area,omitempty"`
	HasTest bool `json:"has_test,omitempty"`
	Salary  *struct {
		From     int    `json:"from,omitempty"`
		To       int    `json:"to,omitempty"`
		Currency string `json:"currency,omitempty"`
		Gross    bool   `json:"gross,omitempty"`
	} `json:"salary,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	Schedule struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"schedule,omitempty"`
	Employer struct {
		ID           string `json:"id,omitempty"`
		Name         string `json:"name,omitempty"`
		URL          string `json:"url,omitempty"`
		AlternateURL string `json:"alternate_url,omitempty"`
		Trusted      bool   `json:"trusted,omitempty"`
	} `json:"employer,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Description  string `json:"description,omitempty"`
	KeySkills    []struct {
		Name string `json:"name,omitempty"`
	} `json:"key_skills,omitempty"`
	Archived bool `json:"archived,omitempty"`
	Snipet   struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

func (v *Vacancies) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Items)
}

func (v *Vacancies) FindByID(id string) *Vacancy {
	for _, vacancy := range v.Items {
		if vacancy.ID == id {
			return vacancy
		}
	}
	return nil
}

// GetVacancy returns the full vacancy including its HTML description.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	var vacancy Vacancy
	if err := c.getJSON(ctx, fmt.Sprintf("%s%s/%s", c.APIURL, SearchPath, id), nil, &vacancy); err != nil {
		return nil, fmt.Errorf("get vacancy %s: %w", id, err)
	}
	return &vacancy, nil
}

// SalaryText renders the salary range, or an empty string when it is hidden.
func (va *Vacancy) SalaryText() string {
	if va.Salary == nil {
		return ""
	}
	switch {
	case va.Salary.From > 0 && va.Salary.To > 0:
		return fmt.Sprintf("%d-%d %s", va.Salary.From, va.Salary.To, va.Salary.Currency)
	case va.Salary.From > 0:
		return fmt.Sprintf("from %d %s", va.Salary.From, va.Salary.Currency)
	case va.Salary.To > 0:
		return fmt.Sprintf("up to %d %s", va.Salary.To, va.Salary.Currency)
	default:
		return ""
	}
}

// Summary joins the fields a search result carries in place of the full description.
func (va *Vacancy) Summary() string {
	parts := make([]string, 0, 5)
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, label+": "+value)
		}
	}

	add("Requirement", va.Snipet.Requirement)
	add("Responsibility", va.Snipet.Responsibility)
	add("Experience", va.Experience.Name)
	add("Schedule", va.Schedule.Name)
	add("Salary", va.SalaryText())

	return strings.Join(parts, "\n")
}
