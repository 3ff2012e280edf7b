// Package teamwork is a client for the Teamwork task-tracking API.
// It validates API tokens, lists projects and task lists, rebuilds task
// hierarchies from the paged task endpoint and writes estimations back.
package teamwork

// AccountInfo is the account a token authenticates as.
type AccountInfo struct {
	ID        string `json:"id"`
	BaseURL   string `json:"baseUrl"`
	UserID    string `json:"userId"`
	Name      string `json:"name"` // first and last name joined by a space
	Company   string `json:"company"`
	CompanyID string `json:"companyId"`
}

// Project is a Teamwork project.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Created     string `json:"created"` // remote "created-on"
}

// TaskList is a Teamwork task list.
type TaskList struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TaskListPage is one page of task lists with the pagination counters
// read from the x-page / x-pages response headers.
type TaskListPage struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"pages"`
	TaskLists  []TaskList `json:"tasklists"`
}

// Task is a Teamwork task ("todo item"). Parent is empty for root tasks.
type Task struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parent      string  `json:"parent"`
	Estimation  float64 `json:"estimation"` // hours
	ChildTasks  []*Task `json:"childTasks"`
}

// taskPage is one page of the flat task listing.
type taskPage struct {
	page  int
	pages int
	tasks []Task
}

// MinutesToHours converts the remote estimated-minutes value into hours.
func MinutesToHours(minutes float64) float64 {
	return minutes / 60
}

// HoursToMinutes converts hours into whole estimated minutes.
func HoursToMinutes(hours float64) int {
	m := hours * 60
	if m < 0 {
		return int(m - 0.5)
	}
	return int(m + 0.5)
}
