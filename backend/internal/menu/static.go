package menu

// SourceStatic marks the built-in fallback menu.
const SourceStatic = "static"

var (
	pizzaSizes = []string{"small", "medium", "large"}
	regular    = []string{"regular"}
)

// DefaultWingOptions are used when the menu source does not list any.
func DefaultWingOptions() WingOptions {
	return WingOptions{
		Flavors: []string{
			"plain", "mild", "medium", "hot", "buffalo", "bbq",
			"honey bbq", "garlic parmesan", "teriyaki", "lemon pepper",
		},
		PieceCounts: []int{6, 10, 20, 30, 50},
		Dressings:   []string{"blue cheese", "ranch"},
	}
}

// Static returns the built-in menu served when the menu source is down.
func Static() *Menu {
	items := []MenuItem{
		pizza("cheese pizza", 12.99, 15.99, 18.99, "Classic tomato sauce and whole-milk mozzarella."),
		pizza("pepperoni pizza", 14.99, 17.99, 20.99, "Tomato sauce, mozzarella and cup-and-char pepperoni."),
		pizza("margherita pizza", 15.99, 18.99, 21.99, "Fresh mozzarella, basil and San Marzano tomato sauce."),
		pizza("white pizza", 14.99, 17.99, 20.99, "Ricotta, mozzarella and garlic, no tomato sauce."),
		pizza("supreme pizza", 17.99, 20.99, 23.99, "Pepperoni, sausage, peppers, onions, mushrooms and olives."),
		pizza("veggie pizza", 16.99, 19.99, 22.99, "Peppers, onions, mushrooms, olives and spinach."),
		single("calzone", CategoryCalzone, 12.99, "Ricotta and mozzarella folded in our pizza dough."),
		single("pepperoni calzone", CategoryCalzone, 14.99, "Ricotta, mozzarella and pepperoni."),
		{
			Name:     "chicken wings",
			Category: CategoryWings,
			PriceByPieceCount: map[int]float64{
				6: 8.99, 10: 13.99, 20: 25.99, 30: 37.99, 50: 59.99,
			},
			Description: "Bone-in wings tossed in your choice of flavor, served with celery.",
		},
		single("garlic bread", CategorySides, 5.99, ""),
		single("garlic knots", CategorySides, 6.99, "Six knots brushed with garlic butter and parmesan."),
		single("mozzarella sticks", CategorySides, 7.99, "Served with marinara."),
		{
			Name:        "french fries",
			Category:    CategorySides,
			Sizes:       []string{"regular", "large"},
			PriceBySize: map[string]float64{"regular": 4.99, "large": 6.99},
		},
		{
			Name:        "salad",
			Category:    CategorySides,
			Sizes:       []string{"small", "large"},
			PriceBySize: map[string]float64{"small": 6.99, "large": 9.99},
			Description: "Romaine, tomato, cucumber and red onion with house Italian dressing.",
		},
		single("soda", CategoryDrinks, 2.99, ""),
		single("water", CategoryDrinks, 1.99, ""),
	}
	return New(items, DefaultWingOptions(), SourceStatic)
}

func pizza(name string, small, medium, large float64, desc string) MenuItem {
	return MenuItem{
		Name:        name,
		Category:    CategoryPizza,
		Sizes:       pizzaSizes,
		PriceBySize: map[string]float64{"small": small, "medium": medium, "large": large},
		Description: desc,
	}
}

func single(name, category string, price float64, desc string) MenuItem {
	return MenuItem{
		Name:        name,
		Category:    category,
		Sizes:       regular,
		PriceBySize: map[string]float64{"regular": price},
		Description: desc,
	}
}
