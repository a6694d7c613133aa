package schema

// Quote is a motivational line shown above today's tasks.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

var quotes = []Quote{
	{"The secret of getting ahead is getting started.", "Mark Twain"},
	{"A goal without a plan is just a wish.", "Antoine de Saint-Exupery"},
	{"Do or do not. There is no try.", "Yoda"},
	{"The way to get started is to quit talking and begin doing.", "Walt Disney"},
	{"Lost time is never found again.", "Benjamin Franklin"},
	{"Action is the foundational key to all success.", "Pablo Picasso"},
	{"It is not enough to be busy. The question is: what are we busy about?", "Henry David Thoreau"},
	{"Time is what we want most, but what we use worst.", "William Penn"},
	{"By failing to prepare, you are preparing to fail.", "Benjamin Franklin"},
	{"The best time to plant a tree was 20 years ago. The second best time is now.", "Chinese Proverb"},
	{"You don't have to be great to start, but you have to start to be great.", "Zig Ziglar"},
	{"Well done is better than well said.", "Benjamin Franklin"},
	{"Productivity is never an accident. It is always the result of a commitment to excellence.", "Paul J. Meyer"},
	{"The only way to do great work is to love what you do.", "Steve Jobs"},
	{"Ordinary people think merely of spending time. Great people think of using it.", "Arthur Schopenhauer"},
	{"Don't wait. The time will never be just right.", "Napoleon Hill"},
	{"Either you run the day or the day runs you.", "Jim Rohn"},
	{"Your future is created by what you do today, not tomorrow.", "Robert Kiyosaki"},
	{"The shorter way to do many things is to do only one thing at a time.", "Mozart"},
	{"What gets measured gets managed.", "Peter Drucker"},
	{"Discipline is the bridge between goals and accomplishment.", "Jim Rohn"},
	{"Amateurs sit and wait for inspiration. The rest of us just get up and go to work.", "Stephen King"},
	{"Plans are nothing; planning is everything.", "Dwight D. Eisenhower"},
	{"Time is the most valuable thing a man can spend.", "Theophrastus"},
	{"Start where you are. Use what you have. Do what you can.", "Arthur Ashe"},
	{"Focus on being productive instead of busy.", "Tim Ferriss"},
	{"The key is not to prioritize what's on your schedule, but to schedule your priorities.", "Stephen Covey"},
	{"A year from now you may wish you had started today.", "Karen Lamb"},
	{"Until we can manage time, we can manage nothing else.", "Peter Drucker"},
	{"Done is better than perfect.", "Sheryl Sandberg"},
}

// DailyQuote picks the quote for a day key. The same day always yields the
// same quote on every device.
func DailyQuote(day string) Quote {
	// 32-bit wrapping hash so every client agrees on the index
	var seed int32
	for _, ch := range day {
		seed = seed*31 + int32(ch)
	}
	n := int32(len(quotes))
	return quotes[((seed%n)+n)%n]
}
